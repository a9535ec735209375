package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"

	"github.com/mbianchi/photarc/pkg/catalog"
	"github.com/mbianchi/photarc/pkg/discovery"
)

// runExif extracts image dimensions and EXIF metadata. Images without EXIF
// blocks (screenshots, PNGs) still get their dimensions recorded; only an
// undecodable file fails the stage.
func (p *Pipeline) runExif(ctx context.Context, fileID string) error {
	photo, err := p.store.GetPhoto(fileID)
	if err != nil {
		return err
	}
	abs := p.absPath(photo)

	f, err := os.Open(abs)
	if err != nil {
		return err
	}
	defer f.Close()

	var data catalog.ExifData
	cfg, _, err := image.DecodeConfig(f)
	if err == nil {
		data.Width = &cfg.Width
		data.Height = &cfg.Height
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if x, err := exif.Decode(f); err == nil {
		fillExif(&data, x)
	}

	if data.Width == nil && data.DateTaken == nil {
		return PermanentStageError("no decodable image data in %s", photo.FilePath)
	}
	return p.store.WriteExif(fileID, data, Versions[StageExif])
}

func fillExif(data *catalog.ExifData, x *exif.Exif) {
	if t, err := x.DateTime(); err == nil {
		data.DateTaken = &t
	}
	data.CameraMake = exifString(x, exif.Make)
	data.CameraModel = exifString(x, exif.Model)
	data.LensModel = exifString(x, exif.LensModel)

	if v, ok := exifRat(x, exif.FocalLength); ok {
		data.FocalLength = &v
	}
	if v, ok := exifRat(x, exif.FNumber); ok {
		data.Aperture = &v
	}
	if tag, err := x.Get(exif.ExposureTime); err == nil {
		if num, den, err := tag.Rat2(0); err == nil && den != 0 {
			if num == 1 {
				data.ShutterSpeed = fmt.Sprintf("1/%d", den)
			} else {
				data.ShutterSpeed = fmt.Sprintf("%g", float64(num)/float64(den))
			}
		}
	}
	if v, ok := exifInt(x, exif.ISOSpeedRatings); ok {
		data.ISO = &v
	}
	if v, ok := exifInt(x, exif.Orientation); ok {
		data.Orientation = &v
	}

	if lat, lon, err := x.LatLong(); err == nil {
		data.GPSLatitude = &lat
		data.GPSLongitude = &lon
	}
	if v, ok := exifRat(x, exif.GPSAltitude); ok {
		data.GPSAltitude = &v
	}
}

func exifString(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return s
}

func exifRat(x *exif.Exif, name exif.FieldName) (float64, bool) {
	tag, err := x.Get(name)
	if err != nil {
		return 0, false
	}
	num, den, err := tag.Rat2(0)
	if err != nil || den == 0 {
		return 0, false
	}
	return float64(num) / float64(den), true
}

func exifInt(x *exif.Exif, name exif.FieldName) (int, bool) {
	tag, err := x.Get(name)
	if err != nil {
		return 0, false
	}
	v, err := tag.Int(0)
	if err != nil {
		return 0, false
	}
	return v, true
}

// runGeocode resolves the photo's GPS coordinates to place names. Photos
// without coordinates are skipped, never failed.
func (p *Pipeline) runGeocode(ctx context.Context, fileID string) error {
	photo, err := p.store.GetPhoto(fileID)
	if err != nil {
		return err
	}
	if photo.GPSLatitude == nil || photo.GPSLongitude == nil {
		return UnavailableStageError("no gps coordinates")
	}
	if p.resolver == nil {
		return UnavailableStageError("no geocoder configured")
	}

	version := Versions[StageGeocode]
	place := p.resolver.Resolve(*photo.GPSLatitude, *photo.GPSLongitude)
	if place == nil {
		// Resolution ran and found nothing nearby; the coordinates stand
		// on their own.
		return p.store.WriteLocation(fileID, "", "", "", version)
	}
	address := fmt.Sprintf("%s, %s", place.City, place.Country)
	return p.store.WriteLocation(fileID, place.Country, place.City, address, version)
}

// runThumbs renders the configured thumbnail sizes as JPEG artifacts.
func (p *Pipeline) runThumbs(ctx context.Context, fileID string) error {
	photo, err := p.store.GetPhoto(fileID)
	if err != nil {
		return err
	}

	img, err := imaging.Open(p.absPath(photo), imaging.AutoOrientation(true))
	if err != nil {
		if os.IsNotExist(err) {
			return err
		}
		return PermanentStageError("failed to decode %s: %v", photo.FilePath, err)
	}

	for _, size := range p.cfg.ThumbnailSizes {
		thumb := imaging.Fit(img, size, size, imaging.Lanczos)
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
			return fmt.Errorf("failed to encode thumbnail: %w", err)
		}
		if err := p.artifacts.Write(p.artifacts.ThumbPath(fileID, size), buf.Bytes()); err != nil {
			return err
		}
	}
	return p.store.WriteThumbnailMeta(fileID, p.cfg.ThumbnailSizes, Versions[StageThumbs])
}

// runMotion finds embedded motion videos and Live Photo sidecars. Most
// photos have neither; the stage then records a bare done.
func (p *Pipeline) runMotion(ctx context.Context, fileID string) error {
	photo, err := p.store.GetPhoto(fileID)
	if err != nil {
		return err
	}
	abs := p.absPath(photo)
	version := Versions[StageMotion]

	if offset, err := discovery.ProbeMotionPhoto(abs); err == nil && offset >= 0 {
		dst := p.artifacts.MotionPath(fileID)
		if err := p.extractMotion(abs, offset, dst); err != nil {
			return err
		}
		return p.store.WriteMotionVideo(fileID, dst, version)
	} else if err != nil {
		return err
	}

	if sidecar := discovery.FindLiveVideo(p.cfg.PhotosRoot, photo.FilePath); sidecar != "" {
		if err := p.store.SetMotionFlags(fileID, false, sidecar); err != nil {
			return err
		}
	}
	return p.store.MarkStageDone(fileID, string(StageMotion), version)
}

func (p *Pipeline) extractMotion(abs string, offset int64, dst string) error {
	f, err := os.Open(abs)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	return p.artifacts.WriteFrom(dst, io.NewSectionReader(f, offset, info.Size()-offset))
}

// runPhash computes the three perceptual fingerprints used for
// near-duplicate grouping.
func (p *Pipeline) runPhash(ctx context.Context, fileID string) error {
	photo, err := p.store.GetPhoto(fileID)
	if err != nil {
		return err
	}

	img, err := imaging.Open(p.absPath(photo))
	if err != nil {
		if os.IsNotExist(err) {
			return err
		}
		return PermanentStageError("failed to decode %s: %v", photo.FilePath, err)
	}

	phash, err := perceptionHashHex(img)
	if err != nil {
		return PermanentStageError("failed to fingerprint %s: %v", photo.FilePath, err)
	}
	ahash, err := averageHashHex(img)
	if err != nil {
		return PermanentStageError("failed to fingerprint %s: %v", photo.FilePath, err)
	}
	dhash, err := differenceHashHex(img)
	if err != nil {
		return PermanentStageError("failed to fingerprint %s: %v", photo.FilePath, err)
	}
	if err := p.store.WritePhash(fileID, phash, ahash, dhash, Versions[StagePhash]); err != nil {
		return err
	}
	p.recordFingerprint(fileID, phash)
	return nil
}
