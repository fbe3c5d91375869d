// Command inspect lists the session keys persisted by the chat client.
// Tokens are masked; only their expiry is decoded.
package main

import (
	"chat-client/auth"
	"chat-client/session"
	"chat-client/storage"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/database"
	"github.com/olekukonko/tablewriter"
)

type row struct {
	Key     string
	Value   string
	Expires string
}

func main() {
	dbPath := flag.String("db", database.DefaultPath, "Path to badger DB")
	prefix := flag.String("prefix", storage.SessionPrefix, "Key namespace to scan")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	rows, err := collect(storage.NewBadgerStore(db, *prefix), time.Now())
	if err != nil {
		log.Fatal(err)
	}
	render(os.Stdout, rows)
}

func collect(store *storage.BadgerStore, now time.Time) ([]row, error) {
	keys, err := store.Keys()
	if err != nil {
		return nil, err
	}
	rows := make([]row, 0, len(keys))
	for _, key := range keys {
		value, ok, err := store.Get(key)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", key, err)
		}
		if !ok {
			continue
		}
		r := row{Key: key, Value: value, Expires: "-"}
		if isToken(key) {
			r.Value = mask(value)
			r.Expires = expiry(value, now)
		}
		rows = append(rows, r)
	}
	return rows, nil
}

func isToken(key string) bool {
	return key == session.KeyAccessToken || key == session.KeyRefreshToken
}

// mask keeps the first characters of a secret so two values can be told apart.
func mask(secret string) string {
	const visible = 6
	if len(secret) <= visible {
		return strings.Repeat("*", len(secret))
	}
	return fmt.Sprintf("%s… (%d chars)", secret[:visible], len(secret))
}

func expiry(token string, now time.Time) string {
	at, err := auth.ExpiresAt(token)
	if err != nil {
		return "opaque"
	}
	left := at.Sub(now).Round(time.Second)
	if left <= 0 {
		return fmt.Sprintf("expired %s ago", -left)
	}
	return fmt.Sprintf("in %s", left)
}

func render(out io.Writer, rows []row) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Key", "Value", "Expires"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	for _, r := range rows {
		table.Append([]string{r.Key, r.Value, r.Expires})
	}
	table.Render()
}

// openDB opens read-only so the inspector can run next to a live client.
func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)
	return badger.Open(opts)
}
