// Package config carries the environment contract the caller must
// satisfy before invoking the pipeline. The values are parsed once in
// the CLI layer and passed explicitly into every component constructor;
// nothing below the CLI reads process environment.
package config

import (
	"fmt"
	"os"
)

// Environment variable names honored when the corresponding flag is
// not set. These match what the CI invocation layer exports.
const (
	EnvNamespace    = "STATE_NAMESPACE"
	EnvBucket       = "STATE_BUCKET"
	EnvBucketRegion = "STATE_BUCKET_REGION"
)

// Config is the explicit form of the invocation environment.
type Config struct {
	// Scope is the provider/cloud namespace ("oci", "aws") under which
	// the region's resources and state live.
	Scope string

	// Bucket is the object storage container holding both the
	// provisioning snapshot and the durable state records. The bucket
	// name is also used as an organizational prefix inside object keys.
	Bucket string

	// Namespace is the object storage namespace identifier. Required
	// for OCI, where it selects the S3-compatibility endpoint.
	Namespace string

	// BucketRegion is the provider region hosting the state bucket. It
	// may differ from the region the operated resources live in.
	BucketRegion string
}

// FromEnv fills any unset field from the process environment.
func (c Config) FromEnv() Config {
	if c.Namespace == "" {
		c.Namespace = os.Getenv(EnvNamespace)
	}
	if c.Bucket == "" {
		c.Bucket = os.Getenv(EnvBucket)
	}
	if c.BucketRegion == "" {
		c.BucketRegion = os.Getenv(EnvBucketRegion)
	}
	return c
}

// Validate checks that the contract is complete for the given scope.
func (c Config) Validate() error {
	if c.Scope == "" {
		return fmt.Errorf("provider scope is required")
	}
	if c.Bucket == "" {
		return fmt.Errorf("state bucket is required (flag --bucket or %s)", EnvBucket)
	}
	if c.BucketRegion == "" {
		return fmt.Errorf("state bucket region is required (flag --bucket-region or %s)", EnvBucketRegion)
	}
	if c.Scope == "oci" && c.Namespace == "" {
		return fmt.Errorf("object storage namespace is required for scope oci (flag --namespace or %s)", EnvNamespace)
	}
	return nil
}
