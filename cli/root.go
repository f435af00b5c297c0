package cli

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"nftmarketplace-onchain/config"
)

// globalFlags は全サブコマンド共通のフラグ。指定されたものだけ環境変数を上書きする
type globalFlags struct {
	rpcURL       string
	contract     string
	abiFile      string
	keyFile      string
	token        string
	journal      string
	timeout      time.Duration
	pollInterval time.Duration
	confirms     uint64
	gasLimit     uint64
	autoApprove  bool
	once         bool
	verbosity    int
}

// connectOptions はサービス構築時の要件
type connectOptions struct {
	requireKey bool // 状態変更を送信するコマンドか
	once       bool
	serve      bool // HTTP APIとして公開する
}

type connectFunc func(ctx context.Context, cfg *config.Config, opts connectOptions) (*services, error)

type app struct {
	flags   globalFlags
	out     io.Writer
	errOut  io.Writer
	connect connectFunc
}

func newApp(out, errOut io.Writer, connect connectFunc) *app {
	return &app{out: out, errOut: errOut, connect: connect}
}

// Execute はコマンドラインを解釈して実行する
func Execute() error {
	// Ctrl-C で確定待ちを打ち切る
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newApp(os.Stdout, os.Stderr, dial).rootCommand().ExecuteContext(ctx)
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "jaguarplace",
		Short: "JaguarPlace marketplace contract client",
		Long: `Sends administrative and purchase calls to a deployed JaguarPlace
marketplace contract and waits for each one to be mined.

Configuration is read from the environment (RPC_URL, PRIVATE_KEY,
MARKETPLACE_CONTRACT_ADDRESS, ...) and can be overridden with flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(a.errOut, a.flags.verbosity)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.rpcURL, "rpc-url", "", "JSON-RPC endpoint (overrides RPC_URL)")
	pf.StringVar(&a.flags.contract, "contract", "", "marketplace contract address (overrides MARKETPLACE_CONTRACT_ADDRESS)")
	pf.StringVar(&a.flags.abiFile, "abi-file", "", "contract ABI JSON file (default: built-in JaguarPlace ABI)")
	pf.StringVar(&a.flags.keyFile, "key-file", "", "file holding the hex private key (overrides PRIVATE_KEY_FILE)")
	pf.StringVar(&a.flags.token, "token", "", "ERC-20 payment token address (overrides PAYMENT_TOKEN_ADDRESS)")
	pf.StringVar(&a.flags.journal, "journal", "", "SQLite call journal path (overrides JOURNAL_PATH)")
	pf.DurationVar(&a.flags.timeout, "timeout", 0, "max time to wait for each call to be mined, 0 waits forever")
	pf.DurationVar(&a.flags.pollInterval, "poll-interval", 0, "receipt polling interval")
	pf.Uint64Var(&a.flags.confirms, "confirmations", 0, "blocks required before a call counts as final")
	pf.Uint64Var(&a.flags.gasLimit, "gas-limit", 0, "fixed gas limit, 0 estimates per call")
	pf.BoolVar(&a.flags.autoApprove, "auto-approve", false, "approve the marketplace for the token amount before buy-token")
	pf.BoolVar(&a.flags.once, "once", false, "refuse calls identical to one already confirmed (needs a journal)")
	pf.IntVarP(&a.flags.verbosity, "verbosity", "v", 3, "log level: 0=crit 1=error 2=warn 3=info 4=debug 5=trace")

	root.AddCommand(a.callCommands()...)
	root.AddCommand(
		a.runCommand(),
		a.verifyCommand(),
		a.historyCommand(),
		a.tokenCommand(),
		a.serveCommand(),
	)
	return root
}

// setupLogging は go-ethereum の log をターミナル向けに設定する
func setupLogging(w io.Writer, verbosity int) {
	useColor := false
	if f, ok := w.(*os.File); ok {
		useColor = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	handler := log.NewTerminalHandlerWithLevel(w, log.FromLegacyLevel(verbosity), useColor)
	log.SetDefault(log.NewLogger(handler))
}

// loadConfig は環境変数を読み、明示されたフラグで上書きする
func (a *app) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	f := a.flags
	if f.rpcURL != "" {
		cfg.Endpoint = f.rpcURL
	}
	if f.contract != "" {
		cfg.ContractAddress = f.contract
	}
	if f.abiFile != "" {
		cfg.ABIFile = f.abiFile
	}
	if f.keyFile != "" {
		cfg.PrivateKey = ""
		cfg.PrivateKeyFile = f.keyFile
	}
	if f.token != "" {
		cfg.TokenAddress = f.token
	}
	if f.journal != "" {
		cfg.JournalPath = f.journal
	}

	flags := cmd.Flags()
	if flags.Changed("timeout") {
		cfg.ConfirmTimeout = f.timeout
	}
	if flags.Changed("poll-interval") {
		cfg.PollInterval = f.pollInterval
	}
	if flags.Changed("confirmations") {
		cfg.Confirmations = f.confirms
	}
	if flags.Changed("gas-limit") {
		cfg.GasLimit = f.gasLimit
	}
	if flags.Changed("auto-approve") {
		cfg.AutoApprove = f.autoApprove
	}
	return cfg, nil
}

// withServices は設定を読み込んで依存を組み立て、fn の後で後始末する
func (a *app) withServices(cmd *cobra.Command, requireKey bool, fn func(s *services) error) error {
	return a.withOptions(cmd, connectOptions{requireKey: requireKey, once: a.flags.once}, fn)
}

func (a *app) withOptions(cmd *cobra.Command, opts connectOptions, fn func(s *services) error) error {
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return err
	}
	s, err := a.connect(cmd.Context(), cfg, opts)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func (a *app) printJSON(v interface{}) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
