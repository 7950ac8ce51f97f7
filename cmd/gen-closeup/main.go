// gen-closeup generates a 2:3 worn close-up shot for one jewelry photo.
package main

import (
	"context"
	"flag"

	_ "image/jpeg"
	_ "image/png"

	"k8s.io/klog/v2"

	"jewelgen/pkg/jewelgen"
)

var (
	image = flag.String("image", "", "path to the prepared input image")
	jtype = flag.String("type", "", "jewelry type (ring|necklace|earring|bracelet|anklet)")
	out   = flag.String("out", "", "output directory")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	if *image == "" || *jtype == "" || *out == "" {
		klog.Exitf("--image, --type and --out are required flags")
	}

	cfg := jewelgen.LoadConfig(".")
	if err := jewelgen.ProcessShot(context.Background(), cfg, "closeup", *image, *jtype, *out); err != nil {
		klog.Exitf("closeup shot failed: %v", err)
	}
}
