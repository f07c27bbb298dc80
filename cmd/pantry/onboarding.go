package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"

	"github.com/maruel/pantry/internal/advisor"
)

// runOnboarding asks for the settings needed on first run and saves them to
// dataDir/.env.
func runOnboarding(in io.Reader, out io.Writer, dataDir string) error {
	p := &prompter{r: bufio.NewReader(in), w: out}
	env := make(map[string]string)
	p.println("Welcome to pantry! Let's set up your configuration.")
	p.println("Press enter to skip optional settings.")

	p.println("\n--- Base URL Setup ---")
	p.println("The base URL is used for OAuth callback URLs.")
	p.println("If no port is specified, the server's port is used automatically.")
	baseURL, err := p.ask("Base URL (default: http://localhost): ")
	if err != nil {
		return err
	}
	if baseURL == "" {
		baseURL = "http://localhost"
	}
	env["BASE_URL"] = baseURL
	displayBaseURL := baseURL
	if u, err := url.Parse(baseURL); err == nil && u.Port() == "" && u.Hostname() == "localhost" {
		u.Host = net.JoinHostPort(u.Hostname(), "8080")
		displayBaseURL = u.String()
	}

	p.println("\n--- Google Sign-in Setup ---")
	p.println("Create an OAuth 2.0 Client ID at https://console.cloud.google.com/apis/credentials")
	p.printf("with redirect URI: %s/api/auth/oauth/google/callback\n", displayBaseURL)
	if env["GOOGLE_CLIENT_ID"], err = p.ask("Google Client ID: "); err != nil {
		return err
	}
	if env["GOOGLE_CLIENT_ID"] != "" {
		if env["GOOGLE_CLIENT_SECRET"], err = p.ask("Google Client Secret: "); err != nil {
			return err
		}
	}

	p.println("\n--- Recipe Suggestions ---")
	p.println("Recipe ideas use the Gemini API. Get a key at https://aistudio.google.com/apikey")
	if env["GEMINI_API_KEY"], err = p.ask("Gemini API key (optional): "); err != nil {
		return err
	}
	if env["GEMINI_API_KEY"] != "" {
		if env["GEMINI_MODEL"], err = p.ask(fmt.Sprintf("Gemini model (default: %s): ", advisor.DefaultModel)); err != nil {
			return err
		}
	}

	p.println("\n--- Pantry ---")
	scope, err := p.ask("Share one pantry between all users? [y/N]: ")
	if err != nil {
		return err
	}
	if strings.EqualFold(scope, "y") || strings.EqualFold(scope, "yes") {
		env["SCOPE"] = "global"
	}

	if err := saveDotEnv(dataDir, env); err != nil {
		return fmt.Errorf("failed to save .env file: %w", err)
	}
	p.printf("\nConfiguration saved to %s/.env\n", dataDir)
	p.println("You can edit this file later to change your settings.")
	return nil
}

type prompter struct {
	r *bufio.Reader
	w io.Writer
}

func (p *prompter) println(s string) {
	_, _ = fmt.Fprintln(p.w, s)
}

func (p *prompter) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.w, format, args...)
}

// ask prints question and returns the trimmed answer. End of input reads as
// an empty answer.
func (p *prompter) ask(question string) (string, error) {
	p.printf("%s", question)
	val, err := p.r.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read answer: %w", err)
	}
	return strings.TrimSpace(val), nil
}
