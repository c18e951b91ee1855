package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env               string
	RedisAddr         string
	RedisDB           int
	DatabaseURL       string
	S3Endpoint        string
	S3AccessKey       string
	S3SecretKey       string
	S3Region          string
	S3UsePathStyle    bool
	SourceBucket      string
	PublicBucket      string
	PublicBucketHost  string
	TempDir           string
	BackendBase       string
	EncoderSecret     string
	FFmpegPath        string
	FFprobePath       string
	VideoCodec        string
	SegmentSeconds    int
	MinSourceBytes    int64
	FetchAttempts     int
	MP4Timeout        time.Duration
	UploadBatchSize   int
	UploadAttempts    int
	NotifyTimeout     time.Duration
	ProgressInterval  time.Duration
	StatsInterval     time.Duration
	WorkerConcurrency int
}

func Load() Config {
	_ = godotenv.Load()

	return Config{
		Env:               getEnv("APP_ENV", "local"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		S3Endpoint:        getEnv("S3_ENDPOINT", "http://localhost:9000"),
		S3AccessKey:       getEnv("S3_ACCESS_KEY", "minio_access"),
		S3SecretKey:       getEnv("S3_SECRET_KEY", "minio_secret"),
		S3Region:          getEnv("S3_REGION", "us-east-1"),
		S3UsePathStyle:    getEnvBool("S3_USE_PATH_STYLE", true),
		SourceBucket:      getEnv("SOURCE_BUCKET", "vod-source"),
		PublicBucket:      getEnv("PUBLIC_BUCKET", "vod-public"),
		PublicBucketHost:  getEnv("PUBLIC_BUCKET_HOST", ""),
		TempDir:           getEnv("TEMP_DIR", ""),
		BackendBase:       getEnv("ENCODER_CALLBACK_BASE", "http://localhost:3000/admin"),
		EncoderSecret:     getEnv("ENCODER_CALLBACK_SECRET", ""),
		FFmpegPath:        getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:       getEnv("FFPROBE_PATH", "ffprobe"),
		VideoCodec:        getEnv("VIDEO_CODEC", ""),
		SegmentSeconds:    getEnvInt("HLS_SEGMENT_SECONDS", 4),
		MinSourceBytes:    int64(getEnvInt("MIN_SOURCE_BYTES", 1<<20)),
		FetchAttempts:     getEnvInt("FETCH_ATTEMPTS", 3),
		MP4Timeout:        getEnvDuration("MP4_TIMEOUT", 20*time.Hour),
		UploadBatchSize:   getEnvInt("UPLOAD_BATCH_SIZE", 15),
		UploadAttempts:    getEnvInt("UPLOAD_ATTEMPTS", 3),
		NotifyTimeout:     getEnvDuration("NOTIFY_TIMEOUT", 30*time.Second),
		ProgressInterval:  getEnvDuration("PROGRESS_INTERVAL", 5*time.Second),
		StatsInterval:     getEnvDuration("STATS_INTERVAL", time.Minute),
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 1),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return fallback
}
