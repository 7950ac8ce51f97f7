package jewelgen

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"path/filepath"

	_ "image/jpeg"
	_ "image/png"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/anthonynsimon/bild/transform"
	"github.com/barasher/go-exiftool"
	"k8s.io/klog/v2"
)

// PrepareInput decodes an input photo, applies its EXIF orientation,
// downscales it so neither side exceeds MaxInputSide, and writes it as a PNG
// to dest. The generation APIs get this normalized copy, never the original.
func PrepareInput(src string, dest string) error {
	img, err := imgio.Open(src)
	if err != nil {
		return fmt.Errorf("imgio.Open: %w", err)
	}

	img = applyOrientation(img, src)

	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	if w > MaxInputSide || h > MaxInputSide {
		scale := float64(MaxInputSide) / float64(w)
		if h > w {
			scale = float64(MaxInputSide) / float64(h)
		}
		nw := int(float64(w) * scale)
		nh := int(float64(h) * scale)
		klog.Infof("resizing input %s: %dx%d -> %dx%d", src, w, h, nw, nh)
		img = transform.Resize(img, nw, nh, transform.Lanczos)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	if err := imgio.Save(dest, img, imgio.PNGEncoder()); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}

// applyOrientation rotates an image per its EXIF Orientation tag. Missing
// exiftool or missing tags leave the image untouched.
func applyOrientation(img image.Image, path string) image.Image {
	et, err := exiftool.NewExiftool()
	if err != nil {
		klog.V(1).Infof("exiftool unavailable, skipping orientation: %v", err)
		return img
	}
	defer et.Close()

	fis := et.ExtractMetadata(path)
	if len(fis) == 0 || fis[0].Err != nil {
		return img
	}

	o, err := fis[0].GetString("Orientation")
	if err != nil {
		return img
	}

	switch o {
	case "Rotate 90 CW":
		return transform.Rotate(img, 90, &transform.RotationOptions{ResizeBounds: true})
	case "Rotate 180":
		return transform.Rotate(img, 180, nil)
	case "Rotate 270 CW":
		return transform.Rotate(img, 270, &transform.RotationOptions{ResizeBounds: true})
	default:
		return img
	}
}

// SaveShot decodes raw image bytes returned by the API, resizes them to
// exactly w x h, and writes a PNG to path.
func SaveShot(data []byte, w, h int, path string) error {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	if img.Bounds().Dx() != w || img.Bounds().Dy() != h {
		img = transform.Resize(img, w, h, transform.Lanczos)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	if err := imgio.Save(path, img, imgio.PNGEncoder()); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}

// CameraInfo is the subset of EXIF metadata recorded into meta.json.
type CameraInfo struct {
	Make  string `json:"make,omitempty"`
	Model string `json:"model,omitempty"`
}

// ReadCameraInfo extracts camera make and model from an image. Failures are
// logged and produce an empty result: camera info is best-effort.
func ReadCameraInfo(path string) CameraInfo {
	ci := CameraInfo{}

	et, err := exiftool.NewExiftool()
	if err != nil {
		klog.V(1).Infof("exiftool unavailable: %v", err)
		return ci
	}
	defer et.Close()

	fis := et.ExtractMetadata(path)
	if len(fis) == 0 {
		return ci
	}
	fi := fis[0]
	if fi.Err != nil {
		klog.V(1).Infof("extract fail for %q: %v", path, fi.Err)
		return ci
	}

	if m, err := fi.GetString("Make"); err == nil {
		ci.Make = m
	}
	if m, err := fi.GetString("Model"); err == nil {
		ci.Model = m
	}
	return ci
}
