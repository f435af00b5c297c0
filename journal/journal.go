// Package journal はコントラクト呼び出しの履歴をSQLiteに記録する。
// 送信したトランザクションを後から追跡し、同一呼び出しの二重送信を検出するために使う。
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"nftmarketplace-onchain/gateway/contract"
	"nftmarketplace-onchain/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS calls (
	id          TEXT PRIMARY KEY,
	operation   TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	tx_hash     TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS calls_fingerprint ON calls (fingerprint, status);
`

// Journal は呼び出し履歴のストア
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// Open はSQLiteファイルを開く (":memory:" も可)
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// 単一接続にして :memory: でも同じDBを共有させる
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init journal schema: %w", err)
	}
	return &Journal{db: db, now: time.Now}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Fingerprint は操作名・引数・送金額から呼び出しを識別するハッシュを作る
func Fingerprint(req *model.CallRequest) string {
	var b strings.Builder
	b.WriteString(req.Operation)
	for _, arg := range req.Args {
		b.WriteByte('|')
		b.WriteString(canonical(arg))
	}
	b.WriteString("|value=")
	if req.Value != nil {
		b.WriteString(req.Value.String())
	} else {
		b.WriteString("0")
	}
	return crypto.Keccak256Hash([]byte(b.String())).Hex()
}

// canonical は同じ値が表記揺れで別の指紋にならないよう正規化する
func canonical(v interface{}) string {
	switch a := v.(type) {
	case string:
		if common.IsHexAddress(a) {
			return common.HexToAddress(a).Hex()
		}
		if n, ok := contract.ParseInteger(a); ok {
			return n.String()
		}
		return a
	case json.Number:
		return canonical(a.String())
	case common.Address:
		return a.Hex()
	case *big.Int:
		return a.String()
	}
	return fmt.Sprint(v)
}

// Begin は送信前の呼び出しを記録し、エントリIDを返す
func (j *Journal) Begin(ctx context.Context, req *model.CallRequest) (*model.JournalEntry, error) {
	now := j.now().UTC()
	entry := &model.JournalEntry{
		ID:          uuid.NewString(),
		Operation:   req.Operation,
		Fingerprint: Fingerprint(req),
		Status:      model.StatusSubmitted,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO calls (id, operation, fingerprint, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Operation, entry.Fingerprint, string(entry.Status), now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("record call: %w", err)
	}
	return entry, nil
}

// Update はエントリの状態を更新する
func (j *Journal) Update(ctx context.Context, id string, status model.CallStatus, txHash string, reason string) error {
	now := j.now().UTC()
	res, err := j.db.ExecContext(ctx,
		`UPDATE calls SET status = ?, tx_hash = CASE WHEN ? = '' THEN tx_hash ELSE ? END, reason = ?, updated_at = ? WHERE id = ?`,
		string(status), txHash, txHash, reason, now.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("update call %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update call %s: not found", id)
	}
	return nil
}

// FindConfirmed は同じ指紋で確定済みのエントリを返す。なければ nil
func (j *Journal) FindConfirmed(ctx context.Context, fingerprint string) (*model.JournalEntry, error) {
	row := j.db.QueryRowContext(ctx,
		`SELECT id, operation, fingerprint, tx_hash, status, reason, created_at, updated_at
		 FROM calls WHERE fingerprint = ? AND status = ? ORDER BY updated_at DESC LIMIT 1`,
		fingerprint, string(model.StatusConfirmed))
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return entry, err
}

// List は新しい順に最大 limit 件を返す
func (j *Journal) List(ctx context.Context, limit int) ([]*model.JournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, operation, fingerprint, tx_hash, status, reason, created_at, updated_at
		 FROM calls ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	defer rows.Close()

	var entries []*model.JournalEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(s scanner) (*model.JournalEntry, error) {
	var (
		entry            model.JournalEntry
		status           string
		created, updated int64
	)
	if err := s.Scan(&entry.ID, &entry.Operation, &entry.Fingerprint, &entry.TxHash, &status, &entry.Reason, &created, &updated); err != nil {
		return nil, err
	}
	entry.Status = model.CallStatus(status)
	entry.CreatedAt = time.UnixMilli(created).UTC()
	entry.UpdatedAt = time.UnixMilli(updated).UTC()
	return &entry, nil
}
