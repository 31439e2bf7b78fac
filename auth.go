package main

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
)

const (
	oauthCallbackPort = 8888
	oauthCallbackPath = "/callback"
)

var oauthRedirectURI = fmt.Sprintf("http://localhost:%d%s", oauthCallbackPort, oauthCallbackPath)

var oauthScopes = []string{
	"read:profile",
	"read:body_measurement",
	"read:cycles",
	"read:recovery",
	"read:sleep",
	"read:workout",
	"offline",
}

type callbackResult struct {
	code string
	err  error
}

func newAuthCmd(configPath *string) *cobra.Command {
	var clientID, clientSecret string
	var port int
	var noBrowser bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize with WHOOP in the browser and save the tokens",
		Long: `Runs the OAuth authorization code flow once:

  1. Create an app at https://developer-dashboard.whoop.com
  2. Add the redirect URI http://localhost:8888/callback
  3. Run whoop-mcp auth --client-id ... --client-secret ...

A local listener receives the callback, the code is exchanged for tokens and
the tokens are written to the config file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadRuntime(*configPath)
			if err != nil {
				return err
			}
			if clientID == "" {
				clientID = cfg.ClientID
			}
			if clientSecret == "" {
				clientSecret = cfg.ClientSecret
			}
			if clientID == "" || clientSecret == "" {
				return errors.New("client id and client secret are required (flags or config)")
			}

			conf := &oauth2.Config{
				ClientID:     clientID,
				ClientSecret: clientSecret,
				RedirectURL:  fmt.Sprintf("http://localhost:%d%s", port, oauthCallbackPath),
				Scopes:       oauthScopes,
				Endpoint: oauth2.Endpoint{
					AuthURL:   cfg.AuthURL,
					TokenURL:  cfg.TokenURL,
					AuthStyle: oauth2.AuthStyleInParams,
				},
			}

			ctx, cancel := withTimeout(cmd.Context(), timeout)
			defer cancel()

			tok, err := authorize(ctx, conf, port, !noBrowser, cmd.OutOrStdout())
			if err != nil {
				return err
			}

			creds := Credentials{
				AccessToken:  tok.AccessToken,
				RefreshToken: tok.RefreshToken,
				ClientID:     clientID,
				ClientSecret: clientSecret,
			}
			if err := SaveCredentials(cfg.Path, creds); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "✅ Successfully obtained tokens!")
			if !tok.Expiry.IsZero() {
				fmt.Fprintf(out, "Access token expires at %s\n", tok.Expiry.Format(time.RFC3339))
			}
			if tok.RefreshToken == "" {
				fmt.Fprintln(out, "⚠️  No refresh token issued; request the offline scope to enable automatic refresh.")
			}
			fmt.Fprintf(out, "Saved credentials to %s\n", cfg.Path)
			return nil
		},
	}

	cmd.Flags().StringVar(&clientID, "client-id", "", "WHOOP OAuth client id")
	cmd.Flags().StringVar(&clientSecret, "client-secret", "", "WHOOP OAuth client secret")
	cmd.Flags().IntVar(&port, "port", oauthCallbackPort, "local callback port (must match the registered redirect URI)")
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "print the authorization URL without opening a browser")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "how long to wait for the browser callback")
	return cmd
}

// authorize runs one authorization code round trip through a short-lived local listener.
func authorize(ctx context.Context, conf *oauth2.Config, port int, launch bool, out io.Writer) (*oauth2.Token, error) {
	state := uuid.NewString()

	listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", port))
	if err != nil {
		return nil, fmt.Errorf("listen for callback: %w", err)
	}

	results := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	mux.Handle(oauthCallbackPath, callbackHandler(state, results))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		_ = srv.Serve(listener)
	}()
	defer srv.Close()

	authURL := conf.AuthCodeURL(state)
	fmt.Fprintln(out, "Opening browser for WHOOP authorization...")
	fmt.Fprintf(out, "If browser doesn't open, visit:\n%s\n\n", authURL)
	if launch {
		if err := openBrowser(authURL); err != nil {
			fmt.Fprintf(out, "⚠️  Could not open browser: %v\n", err)
		}
	}

	var code string
	select {
	case res := <-results:
		if res.err != nil {
			return nil, res.err
		}
		code = res.code
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for authorization callback: %w", ctx.Err())
	}

	fmt.Fprintln(out, "🔄 Exchanging authorization code for access token...")
	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}
	return tok, nil
}

// callbackHandler accepts the first redirect carrying the expected state.
func callbackHandler(state string, results chan<- callbackResult) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var res callbackResult
		switch {
		case q.Get("state") != state:
			res.err = errors.New("authorization callback state mismatch")
		case q.Get("error") != "":
			res.err = fmt.Errorf("authorization denied: %s", q.Get("error"))
		case q.Get("code") == "":
			res.err = errors.New("authorization callback missing code")
		default:
			res.code = q.Get("code")
		}

		w.Header().Set("Content-Type", "text/html")
		if res.err != nil {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, "<h1>Error: %s</h1>", html.EscapeString(res.err.Error()))
		} else {
			fmt.Fprint(w, "<h1>Success!</h1><p>You can close this window.</p>")
		}

		select {
		case results <- res:
		default:
		}
	})
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

func newRefreshCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the stored refresh token for a new access token and save it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime(*configPath)
			if err != nil {
				return err
			}

			client := NewWhoopClient(cfg.ClientConfig(), WithLogger(logger))
			if !client.CanRefresh() {
				return errors.New("refresh_token, client_id and client_secret are required to refresh")
			}

			fmt.Fprintln(cmd.OutOrStdout(), "🔄 Refreshing access token...")
			if !client.RefreshAccessToken(cmd.Context()) {
				return errors.New("token refresh failed: refresh token expired, already used, or invalid client credentials")
			}

			creds := Credentials{
				AccessToken:  client.AccessToken(),
				RefreshToken: client.RefreshToken(),
			}
			if err := SaveCredentials(cfg.Path, creds); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✅ Updated %s with your new tokens!\n", cfg.Path)
			return nil
		},
	}
}
