package cli

import (
	"context"
	"crypto/ecdsa"
	"sync"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"

	"nftmarketplace-onchain/config"
	"nftmarketplace-onchain/gateway/contract"
	paymentGateway "nftmarketplace-onchain/gateway/payment"
	"nftmarketplace-onchain/journal"
	"nftmarketplace-onchain/model"
	contractUsecase "nftmarketplace-onchain/usecase/contract"
	paymentUsecase "nftmarketplace-onchain/usecase/payment"
)

// services はコマンドが使うユースケースと、その後始末
type services struct {
	contractUC contractUsecase.ContractUsecase
	paymentUC  paymentUsecase.PaymentUsecase
	api        apiSettings
	closers    []func() error
}

func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.Warn("Failed to release resource", "err", err)
		}
	}
}

// apiSettings は serve が使う公開設定
type apiSettings struct {
	host    string
	port    string
	token   config.Secret
	origins []string
}

// dial は設定を検証してからノードに接続し、ゲートウェイとユースケースを組み立てる
func dial(ctx context.Context, cfg *config.Config, opts connectOptions) (*services, error) {
	if err := cfg.Validate(opts.requireKey); err != nil {
		return nil, err
	}
	if opts.serve {
		if err := cfg.ValidateServe(); err != nil {
			return nil, err
		}
	}
	if opts.once && cfg.JournalPath == "" {
		return nil, model.ConfigError("config", "--once needs a call journal (JOURNAL_PATH or --journal)")
	}

	// 読み取り専用のコマンドでは鍵は任意。あれば既定のアカウントに使う
	var key *ecdsa.PrivateKey
	if k, err := cfg.Key(); err == nil {
		key = k
	} else if opts.requireKey {
		return nil, model.ConfigError("config", "%v", err)
	}

	abiJSON, err := cfg.ABI(contract.JaguarPlaceABI)
	if err != nil {
		return nil, err
	}
	desc, err := contract.NewDescriptor(cfg.ContractAddress, abiJSON)
	if err != nil {
		return nil, err
	}

	client, err := ethclient.DialContext(ctx, cfg.Endpoint)
	if err != nil {
		return nil, &model.CallError{Kind: model.ErrSubmission, Operation: "connect", Err: err}
	}
	s := &services{
		api:     apiSettings{host: cfg.ListenHost, port: cfg.Port, token: cfg.APIToken, origins: cfg.AllowedOrigins},
		closers: []func() error{func() error { client.Close(); return nil }},
	}
	log.Info("Connected to node", "contract", desc.Address)

	gwOpts := contract.Options{
		GasLimit:       cfg.GasLimit,
		Confirmations:  cfg.Confirmations,
		PollInterval:   cfg.PollInterval,
		ConfirmTimeout: cfg.ConfirmTimeout,
		SubmitLock:     new(sync.Mutex),
	}
	marketGW, err := contract.NewEthContractGateway(client, desc, key, gwOpts)
	if err != nil {
		s.Close()
		return nil, err
	}
	var sender string
	if key != nil {
		sender = marketGW.Sender().Hex()
		log.Info("Signing account loaded", "account", sender)
	}

	// インターフェースに型付きnilを入れないよう、設定がある場合だけ代入する
	var tokenGW contract.ContractGateway
	if cfg.TokenAddress != "" {
		tokenDesc, err := contract.NewDescriptor(cfg.TokenAddress, paymentGateway.ERC20ABI)
		if err != nil {
			s.Close()
			return nil, err
		}
		gw, err := contract.NewEthContractGateway(client, tokenDesc, key, gwOpts)
		if err != nil {
			s.Close()
			return nil, err
		}
		tokenGW = gw
	}
	s.paymentUC = paymentUsecase.NewPaymentUsecase(paymentGateway.NewEthPaymentGateway(client, tokenGW), sender, desc.Address.Hex())

	var ucOpts []contractUsecase.Option
	if cfg.JournalPath != "" {
		j, err := journal.Open(cfg.JournalPath)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, j.Close)
		ucOpts = append(ucOpts, contractUsecase.WithJournal(j), contractUsecase.WithDuplicateGuard(opts.once))
	}
	if cfg.AutoApprove {
		if tokenGW == nil {
			s.Close()
			return nil, model.ConfigError("config", "AUTO_APPROVE needs PAYMENT_TOKEN_ADDRESS")
		}
		ucOpts = append(ucOpts, contractUsecase.WithAllowance(s.paymentUC))
	}
	s.contractUC = contractUsecase.NewContractUsecase(marketGW, ucOpts...)
	return s, nil
}
