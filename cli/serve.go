package cli

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"nftmarketplace-onchain/config"
	contractHandler "nftmarketplace-onchain/handler/contract"
	paymentHandler "nftmarketplace-onchain/handler/payment"
)

func (a *app) serveCommand() *cobra.Command {
	var host, port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the contract and payment HTTP API",
		Long: `Serves the HTTP API on 127.0.0.1 unless --host or LISTEN_HOST says otherwise.
POST routes require "Authorization: Bearer <API_TOKEN>". Cross-origin requests
are allowed only from CORS_ALLOWED_ORIGINS.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := connectOptions{requireKey: true, once: a.flags.once, serve: true}
			return a.withOptions(cmd, opts, func(s *services) error {
				if host != "" {
					s.api.host = host
				}
				if port != "" {
					s.api.port = port
				}
				return serve(cmd.Context(), net.JoinHostPort(s.api.host, s.api.port), newRouter(s))
			})
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen address (overrides LISTEN_HOST, default 127.0.0.1)")
	cmd.Flags().StringVar(&port, "port", "", "listen port (overrides PORT, default 8080)")
	return cmd
}

// newRouter はAPIのルーティングとCORSを設定する
func newRouter(s *services) http.Handler {
	contractHdlr := contractHandler.NewContractHandler(s.contractUC)
	paymentHdlr := paymentHandler.NewPaymentHandler(s.paymentUC)
	auth := func(h http.HandlerFunc) http.HandlerFunc { return requireToken(s.api.token, h) }

	router := mux.NewRouter()

	// ヘルスチェック用エンドポイント
	health := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
	router.HandleFunc("/", health).Methods("GET")
	router.HandleFunc("/health", health).Methods("GET")

	// Contract API
	router.HandleFunc("/api/v1/contract/info", contractHdlr.HandleContractInfo).Methods("GET")
	router.HandleFunc("/api/v1/contract/history", contractHdlr.HandleHistory).Methods("GET")
	router.HandleFunc("/api/v1/contract/call", auth(contractHdlr.HandleCall)).Methods("POST")
	router.HandleFunc("/api/v1/contract/call/{operation}", auth(contractHdlr.HandleCall)).Methods("POST")
	router.HandleFunc("/api/v1/contract/verify-tx", auth(contractHdlr.HandleVerifyTransaction)).Methods("POST")

	// Payment API
	router.HandleFunc("/api/v1/payment/balance", paymentHdlr.HandleGetBalance).Methods("GET")
	router.HandleFunc("/api/v1/payment/allowance", paymentHdlr.HandleGetAllowance).Methods("GET")
	router.HandleFunc("/api/v1/payment/approve", auth(paymentHdlr.HandleApprove)).Methods("POST")

	// 空の AllowedOrigins は全許可になるため、関数で明示的に照合する
	allowed := make(map[string]bool, len(s.api.origins))
	for _, origin := range s.api.origins {
		allowed[origin] = true
	}
	c := cors.New(cors.Options{
		AllowOriginFunc: func(origin string) bool { return allowed[origin] },
		AllowedMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:  []string{"Content-Type", "Authorization"},
	})
	return c.Handler(router)
}

// requireToken は Bearer トークンが一致しない要求を 401 で拒否する。token が空なら常に拒否
func requireToken(token config.Secret, next http.HandlerFunc) http.HandlerFunc {
	want := []byte(token.Reveal())
	return func(w http.ResponseWriter, r *http.Request) {
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || len(want) == 0 || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			log.Warn("Rejected unauthenticated request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
			w.Header().Set("WWW-Authenticate", `Bearer realm="onchain"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// serve は ctx がキャンセルされるまでHTTPサーバーを動かす
func serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("Onchain service starting", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
