package config

import (
	"sync"
)

var (
	minioOnce   sync.Once
	minioConfig *MinioConfig
)

type MinioConfig struct {
	AccessKey  string
	SecretKey  string
	Endpoint   string
	UseSSL     bool
	Region     string
	BucketName string
}

// ArchiveEnabled reports whether processed batch folders and generated
// reports should be mirrored to object storage.
func ArchiveEnabled() bool {
	return envOr("FISCALFLOW_ARCHIVE", "false") == "true"
}

func GetMinioConfig() *MinioConfig {
	minioOnce.Do(func() {
		minioConfig = &MinioConfig{
			AccessKey:  envOr("MINIO_ACCESS_KEY", ""),
			SecretKey:  envOr("MINIO_SECRET_KEY", ""),
			Endpoint:   envOr("MINIO_ENDPOINT", "localhost:9000"),
			UseSSL:     envOr("MINIO_USE_SSL", "false") == "true",
			Region:     envOr("MINIO_REGION", ""),
			BucketName: envOr("MINIO_BUCKET_NAME", "fiscalflow-batches"),
		}
	})
	return minioConfig
}
