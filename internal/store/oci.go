package store

import (
	"io"
	"os"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/static"
	"github.com/google/go-containerregistry/pkg/v1/types"

	"github.com/ogulcanaydogan/driftgate/internal/errors"
)

const RecordMediaType = types.MediaType("application/vnd.driftgate.record.v1+json")

// PublishOCI pushes the record file at inPath as a single-layer artifact and
// returns the reference pinned to the pushed manifest digest. annotations
// are set on the manifest.
func PublishOCI(inPath, ociRef string, annotations map[string]string) (string, error) {
	raw, err := os.ReadFile(inPath)
	if err != nil {
		return "", errors.Wrap(err, "read record")
	}
	ref, err := name.ParseReference(ociRef, name.WithDefaultRegistry("ghcr.io"))
	if err != nil {
		return "", errors.Wrap(err, "parse oci ref")
	}

	img, err := mutate.AppendLayers(empty.Image, static.NewLayer(raw, RecordMediaType))
	if err != nil {
		return "", errors.Wrap(err, "append layer")
	}
	img = mutate.MediaType(img, types.OCIManifestSchema1)
	if len(annotations) > 0 {
		img = mutate.Annotations(img, annotations).(v1.Image)
	}

	if err := remote.Write(ref, img, remote.WithAuthFromKeychain(authn.DefaultKeychain)); err != nil {
		return "", errors.Wrap(err, "push oci artifact")
	}
	digest, err := img.Digest()
	if err != nil {
		return "", errors.Wrap(err, "compute manifest digest")
	}
	return ref.Context().Digest(digest.String()).String(), nil
}

func PullOCI(ociRef, outPath string) error {
	ref, err := name.ParseReference(ociRef, name.WithDefaultRegistry("ghcr.io"))
	if err != nil {
		return errors.Wrap(err, "parse oci ref")
	}
	img, err := remote.Image(ref, remote.WithAuthFromKeychain(authn.DefaultKeychain))
	if err != nil {
		return errors.Wrap(err, "pull oci artifact")
	}
	layers, err := img.Layers()
	if err != nil {
		return errors.Wrap(err, "read layers")
	}
	if len(layers) == 0 {
		return errors.New("oci artifact has no layers")
	}
	mt, err := layers[0].MediaType()
	if err != nil {
		return errors.Wrap(err, "read layer media type")
	}
	if mt != RecordMediaType {
		return errors.Newf("oci artifact layer is %s, want %s", mt, RecordMediaType)
	}

	rc, err := layers[0].Uncompressed()
	if err != nil {
		return errors.Wrap(err, "read layer payload")
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return errors.Wrap(err, "read layer bytes")
	}
	if err := os.WriteFile(outPath, raw, 0o644); err != nil {
		return errors.Wrap(err, "write pulled record")
	}
	return nil
}
