// Command medassist is a terminal client for the medical image assistant.
//
// It signs in against the security service, shrinks images before upload,
// sends them for diagnosis, and manages stored records and chat
// conversations. The session token is kept in a YAML file between runs.
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/medassist/internal/apierr"
	"github.com/fpang/medassist/internal/cli"
	"github.com/fpang/medassist/internal/config"
	"github.com/fpang/medassist/internal/logging"
	"github.com/fpang/medassist/internal/session"
	"github.com/fpang/medassist/internal/transport"
)

// maxRetryDelay caps the wait between --retries attempts.
const maxRetryDelay = 60 * time.Second

// Global flags
var (
	apiURLFlag          string
	chatAPIURLFlag      string
	authURLFlag         string
	sessionFileFlag     string
	languageFlag        string
	retriesFlag         uint
	analysisTimeoutFlag time.Duration
	jsonFlag            bool
)

// Initialised by PersistentPreRunE.
var (
	cfg     *config.Config
	clients *cli.Clients
)

var rootCmd = &cobra.Command{
	Use:   "medassist",
	Short: "Analyse medical images and chat about the results",
	Long: `medassist sends X-rays, ECGs, and medical reports for AI analysis and
returns a diagnosis in English and Arabic with a confidence score.

Images are shrunk locally before upload. Signed-in users keep a history
of analysed images and can ask follow-up questions about each one.

Examples:
  medassist login --email me@example.com
  medassist analyze ./chest-xray.jpg
  medassist records list
  medassist chat send "What does this finding mean?" --record <id>
  medassist reduce ./large-photo.jpg -o ./small.jpg`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&apiURLFlag, "api-url", "", "Diagnosis backend URL (default $"+config.EnvAPIURL+")")
	pf.StringVar(&chatAPIURLFlag, "chat-api-url", "", "Consult backend URL (default $"+config.EnvChatAPIURL+")")
	pf.StringVar(&authURLFlag, "auth-url", "", "Security service URL (default $"+config.EnvAuthURL+")")
	pf.StringVar(&sessionFileFlag, "session-file", "", "Session file path (default $"+config.EnvSessionFile+")")
	pf.StringVarP(&languageFlag, "language", "l", "", "Response language: en or ar")
	pf.UintVar(&retriesFlag, "retries", 0, "Retry recoverable failures this many times")
	pf.DurationVar(&analysisTimeoutFlag, "analysis-timeout", 0, "Time budget for analysis and chat calls (default 30s)")
	pf.BoolVar(&jsonFlag, "json", false, "Print responses as JSON")

	rootCmd.AddCommand(loginCmd, registerCmd, logoutCmd, whoamiCmd)
	rootCmd.AddCommand(analyzeCmd, reduceCmd)
	rootCmd.AddCommand(recordsCmd, chatCmd, consultCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		cli.HandleError(err)
	}
}

func setup(cmd *cobra.Command, _ []string) error {
	logging.Init()

	var err error
	cfg, err = config.Load()
	if err != nil {
		return err
	}
	override(&cfg.APIURL, apiURLFlag)
	override(&cfg.ChatAPIURL, chatAPIURLFlag)
	override(&cfg.AuthURL, authURLFlag)
	override(&cfg.SessionFile, sessionFileFlag)
	override(&cfg.Language, languageFlag)
	if err := cfg.Validate(); err != nil {
		return apierr.Newf(apierr.CodeValidation, err, "%s", err.Error())
	}

	var opts []transport.Option
	if analysisTimeoutFlag > 0 {
		opts = append(opts, transport.WithTimeouts(transport.Timeouts{Analysis: analysisTimeoutFlag}))
	}
	clients, err = cli.InitClients(cfg, session.NewFileStore(cfg.SessionFile), opts...)
	if err != nil {
		return apierr.New(apierr.CodeStorage, err)
	}

	log.Debug().
		Str("command", cmd.CommandPath()).
		Str("apiUrl", cfg.APIURL).
		Str("sessionFile", cfg.SessionFile).
		Bool("signedIn", clients.Session.Authenticated()).
		Msg("medassist starting")
	return nil
}

func override(dst *string, flag string) {
	if flag != "" {
		*dst = flag
	}
}

// call runs fn, retrying recoverable failures when --retries is set.
func call[T any](ctx context.Context, fn func() transport.Result[T]) (T, error) {
	var out T
	err := apierr.Retry(ctx, retriesFlag+1, maxRetryDelay, func() error {
		v, err := fn().Unwrap()
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// printJSON writes v to stdout, indented.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func language() string {
	if clients.Session.Language != "" {
		return clients.Session.Language
	}
	return "en"
}
