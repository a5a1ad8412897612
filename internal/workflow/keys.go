package workflow

import (
	"path"

	"github.com/JaimeStill/geoassign/internal/fingerprint"
	"github.com/JaimeStill/geoassign/internal/uploads"
)

// RegionFile is the artifact holding the serialized credible region.
const RegionFile = "credible_region.json"

// GenotypeKey is the blob key of an uploaded genotype file.
func GenotypeKey(contentHash string) string {
	return uploads.StorageKey(contentHash)
}

// ArtifactKey is the blob key of one result file of a job.
func ArtifactKey(fp fingerprint.Fingerprint, name string) string {
	return path.Join("results", fp.String(), name)
}

// ArtifactPrefix is the blob key prefix shared by every result file of a job.
func ArtifactPrefix(fp fingerprint.Fingerprint) string {
	return ArtifactKey(fp, "") + "/"
}
