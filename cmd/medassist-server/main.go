// Command medassist-server runs the diagnosis backend.
//
// Locally it listens on $PORT (default 8000). When AWS_LAMBDA_FUNCTION_NAME is
// set it runs behind API Gateway through the HTTP adapter instead.
//
// Configuration:
//
//	GEMINI_API_KEY / SSM_API_KEY_PARAM  Gemini credentials (env first, then SSM)
//	GEMINI_MODEL                        model name (default gemini-2.5-flash)
//	RECORDS_TABLE_NAME                  DynamoDB table; in-memory store when empty
//	MEDIA_BUCKET_NAME                   S3 bucket for analysed images; optional
//	MAX_UPLOAD_BYTES                    upload limit (default 10 MiB)
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/medassist/internal/diagnosis"
	"github.com/fpang/medassist/internal/lambdaboot"
	"github.com/fpang/medassist/internal/logging"
	"github.com/fpang/medassist/internal/s3util"
	"github.com/fpang/medassist/internal/server"
	"github.com/fpang/medassist/internal/store"
)

var (
	portFlag  int
	localFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "medassist-server",
	Short: "Medical image analysis API",
	Long: `Serves image diagnosis, saved records, and the chat assistant over HTTP.

Examples:
  GEMINI_API_KEY=... medassist-server --port 8000
  medassist-server --local   # in-memory store, no AWS calls`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().IntVarP(&portFlag, "port", "p", envInt("PORT", 8000), "Port to listen on")
	rootCmd.Flags().BoolVar(&localFlag, "local", false, "Skip AWS: in-memory store, no image bucket, key from GEMINI_API_KEY only")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	initStart := time.Now()
	inLambda := os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
	if inLambda {
		logging.InitJSON()
	} else {
		logging.Init()
	}
	ctx := context.Background()

	deps, err := bootstrap(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Startup failed")
		return err
	}

	srv := server.New(server.Config{
		Diagnosis:      deps.service,
		Store:          deps.store,
		Images:         deps.images,
		MaxUploadBytes: int64(envInt("MAX_UPLOAD_BYTES", int(server.DefaultMaxUploadBytes))),
		Version:        "1.0.0+" + commitHash,
	})
	handler := srv.Handler()

	mode := "local"
	if inLambda {
		mode = "lambda"
	}
	startup := lambdaboot.StartupLog("medassist-server", initStart).
		Mode(mode).
		CommitHash(commitHash).
		BuildTime(buildTime).
		DynamoTable("records", os.Getenv(lambdaboot.EnvRecordsTable)).
		Feature("imageStorage", deps.images != nil).
		Config("model", diagnosis.ModelName())
	if deps.images != nil {
		startup = startup.S3Bucket("media", os.Getenv(lambdaboot.EnvMediaBucket))
	}
	if deps.keyFromSSM {
		startup = startup.SSMParam("geminiKey", lambdaboot.GeminiKeyParam())
	}
	if !inLambda {
		startup = startup.Config("port", strconv.Itoa(portFlag))
	}
	startup.Log()

	if inLambda {
		adapter := httpadapter.NewV2(handler)
		lambda.Start(adapter.ProxyWithContext)
		return nil
	}
	return serve(handler)
}

type dependencies struct {
	service    *diagnosis.Service
	store      store.Store
	images     server.ImageStore
	keyFromSSM bool
}

func bootstrap(ctx context.Context) (*dependencies, error) {
	deps := &dependencies{}

	var awsCfg aws.Config
	var ssmClient lambdaboot.SSMAPI
	if !localFlag {
		clients, err := lambdaboot.InitAWS(ctx)
		if err != nil {
			return nil, err
		}
		awsCfg = clients.Config
		ssmClient = clients.SSM
	}

	deps.keyFromSSM = os.Getenv(lambdaboot.EnvGeminiKey) == "" && ssmClient != nil
	apiKey, err := lambdaboot.LoadGeminiKey(ctx, ssmClient)
	if err != nil {
		return nil, err
	}
	client, err := diagnosis.NewGeminiClient(ctx, apiKey)
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}
	deps.service = diagnosis.NewService(diagnosis.NewGeminiModel(client, diagnosis.ModelName()))

	if localFlag {
		deps.store = store.NewMemoryStore()
		return deps, nil
	}
	deps.store = lambdaboot.InitStore(awsCfg)
	if s3c := lambdaboot.InitS3(awsCfg); s3c != nil {
		deps.images = &s3util.ImageBucket{Client: s3c.Client, Presigner: s3c.Presigner, Bucket: s3c.Bucket}
	}
	return deps, nil
}

func serve(handler http.Handler) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", portFlag),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Graceful shutdown failed")
		}
	}()

	log.Info().Int("port", portFlag).Msg("Starting API server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

func envInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Warn().Str("envVar", name).Str("value", v).Msg("Ignoring invalid integer")
		return def
	}
	return n
}
