// Package lambdaboot holds the server's cold-start bootstrap: AWS config,
// the S3 image bucket, the record store, and the Gemini API key.
//
// Each helper reads its own environment variable so cmd/medassist-server's
// startup is a short composition of calls. Optional resources return nil (or
// the in-memory fallback) with a warning instead of failing.
package lambdaboot

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/fpang/medassist/internal/logging"
	"github.com/fpang/medassist/internal/store"
)

// Environment variables read during bootstrap.
const (
	EnvGeminiKey      = "GEMINI_API_KEY"
	EnvGeminiKeyParam = "SSM_API_KEY_PARAM"
	EnvRecordsTable   = "RECORDS_TABLE_NAME"
	EnvMediaBucket    = "MEDIA_BUCKET_NAME"
)

// DefaultGeminiKeyParam is the SSM parameter read when EnvGeminiKeyParam is
// unset.
const DefaultGeminiKeyParam = "/medassist/prod/gemini-api-key"

// AWSClients holds the loaded AWS config and the SSM client.
type AWSClients struct {
	Config aws.Config
	SSM    *ssm.Client
}

// S3Clients holds S3 client, presigner, and bucket name.
type S3Clients struct {
	Client    *s3.Client
	Presigner *s3.PresignClient
	Bucket    string
}

// SSMAPI is the part of *ssm.Client used to read parameters.
type SSMAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// InitAWS loads the default AWS config and returns it along with an SSM client.
func InitAWS(ctx context.Context) (AWSClients, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return AWSClients{}, fmt.Errorf("load AWS config: %w", err)
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return AWSClients{
		Config: cfg,
		SSM:    ssm.NewFromConfig(cfg),
	}, nil
}

// InitS3 creates an S3 client and presigner for the bucket named by
// EnvMediaBucket. It returns nil when the variable is empty, in which case
// uploaded images are not persisted.
func InitS3(cfg aws.Config) *S3Clients {
	bucket := os.Getenv(EnvMediaBucket)
	if bucket == "" {
		log.Warn().Str("envVar", EnvMediaBucket).Msg("Media bucket not set, images will not be stored")
		return nil
	}
	client := s3.NewFromConfig(cfg)
	return &S3Clients{
		Client:    client,
		Presigner: s3.NewPresignClient(client),
		Bucket:    bucket,
	}
}

// InitStore returns a DynamoDB store for the table named by EnvRecordsTable,
// or an in-memory store when the variable is empty.
func InitStore(cfg aws.Config) store.Store {
	tableName := os.Getenv(EnvRecordsTable)
	if tableName == "" {
		log.Warn().Str("envVar", EnvRecordsTable).Msg("Records table not set, using in-memory store")
		return store.NewMemoryStore()
	}
	return store.NewDynamoStore(dynamodb.NewFromConfig(cfg), tableName)
}

// GeminiKeyParam returns the SSM parameter name holding the Gemini key.
func GeminiKeyParam() string {
	return logging.EnvOrDefault(EnvGeminiKeyParam, DefaultGeminiKeyParam)
}

// LoadGeminiKey returns GEMINI_API_KEY when set, otherwise reads the key
// from SSM Parameter Store. A nil client with no env key is an error.
func LoadGeminiKey(ctx context.Context, ssmClient SSMAPI) (string, error) {
	if key := os.Getenv(EnvGeminiKey); key != "" {
		return key, nil
	}
	if ssmClient == nil {
		return "", fmt.Errorf("%s is not set and SSM is unavailable", EnvGeminiKey)
	}

	paramName := GeminiKeyParam()
	ssmStart := time.Now()
	result, err := ssmClient.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &paramName,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("read %s from SSM: %w", paramName, err)
	}
	if result.Parameter == nil || result.Parameter.Value == nil || *result.Parameter.Value == "" {
		return "", fmt.Errorf("SSM parameter %s is empty", paramName)
	}
	log.Debug().Str("param", paramName).Dur("elapsed", time.Since(ssmStart)).Msg("Gemini API key loaded from SSM")
	return *result.Parameter.Value, nil
}

// StartupLog is a convenience wrapper for the startup logger.
func StartupLog(name string, initStart time.Time) *logging.StartupLogger {
	return logging.NewStartupLogger(name).InitDuration(time.Since(initStart))
}
