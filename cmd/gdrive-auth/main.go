// Command gdrive-auth prints the GDRIVE_REFRESH_TOKEN used when the worker
// archives renders to Google Drive.
//
// It reads GDRIVE_CLIENT_ID and GDRIVE_CLIENT_SECRET (a .env file is
// honored), listens on a loopback port for the OAuth redirect and exchanges
// the code for an offline token.
package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/oauth2"

	"televid/internal/config"
	"televid/internal/pkg/errors"
	"televid/internal/storage"
	"televid/internal/worker/util"
)

func main() {
	timeout := flag.Duration("timeout", 3*time.Minute, "how long to wait for the browser callback")
	flag.Parse()

	_ = godotenv.Load()

	if err := run(context.Background(), os.Stdout, *timeout); err != nil {
		fmt.Fprintln(os.Stderr, "gdrive-auth:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, out io.Writer, timeout time.Duration) error {
	creds := config.Storage{
		GDriveClientID:     util.Env("GDRIVE_CLIENT_ID", ""),
		GDriveClientSecret: util.Env("GDRIVE_CLIENT_SECRET", ""),
	}
	if creds.GDriveClientID == "" || creds.GDriveClientSecret == "" {
		return errors.Validation("GDRIVE_CLIENT_ID and GDRIVE_CLIENT_SECRET are required")
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return errors.Wrap(err, "gdrive_auth.listen", "open callback listener")
	}
	redirectURL := fmt.Sprintf("http://%s/callback", ln.Addr())
	conf := storage.GDriveOAuth(creds, redirectURL)

	cb := newCallback()
	mux := http.NewServeMux()
	mux.Handle("/callback", cb)
	srv := &http.Server{Handler: mux, ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	// prompt=consent makes Google return a refresh token on every run.
	authURL := conf.AuthCodeURL(cb.state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	fmt.Fprintf(out, "Open this URL in a browser:\n%s\nWaiting for the callback on %s\n", authURL, redirectURL)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	code, err := cb.wait(ctx)
	if err != nil {
		return err
	}

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "gdrive_auth.exchange", "exchange authorization code")
	}
	if tok.RefreshToken == "" {
		return errors.New(errors.CodeUnavailable,
			"no refresh token returned; revoke the app at https://myaccount.google.com/permissions and run again")
	}

	fmt.Fprintln(out, "GDRIVE_REFRESH_TOKEN="+tok.RefreshToken)
	return nil
}

// callback accepts the first redirect that carries the expected state.
type callback struct {
	state  string
	result chan callbackResult
}

type callbackResult struct {
	code string
	err  error
}

func newCallback() *callback {
	b := make([]byte, 18)
	_, _ = rand.Read(b)
	return &callback{
		state:  base64.RawURLEncoding.EncodeToString(b),
		result: make(chan callbackResult, 1),
	}
}

func (c *callback) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var err error
	switch {
	case q.Get("state") != c.state:
		err = errors.Validation("invalid state")
	case q.Get("error") != "":
		err = errors.Newf(errors.CodeUnavailable, "authorization denied: %s", q.Get("error"))
	case q.Get("code") == "":
		err = errors.Validation("missing code")
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		c.send(callbackResult{err: err})
		return
	}

	fmt.Fprintln(w, "Authorized. You can close this window.")
	c.send(callbackResult{code: q.Get("code")})
}

// send keeps the first result. Later redirects are answered but dropped.
func (c *callback) send(res callbackResult) {
	select {
	case c.result <- res:
	default:
	}
}

func (c *callback) wait(ctx context.Context) (string, error) {
	select {
	case res := <-c.result:
		return res.code, res.err
	case <-ctx.Done():
		return "", errors.Timeout("gdrive_auth.callback")
	}
}
