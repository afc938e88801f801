package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Default server base URL; can override with JNY_SERVER env var or --server flag.
var serverBaseURL = "http://localhost:8080"

var httpClient = &http.Client{Timeout: 30 * time.Second}

func main() {
	cmd := flag.String("cmd", "libraries", "Command: login|logout|libraries|catalog|scan|mybooks|notifications|records|return")
	serverFlag := flag.String("server", "", "Override server base URL (e.g. https://library.example.org)")
	email := flag.String("email", "", "Login email (login)")
	password := flag.String("password", "", "Login password (login); falls back to JNY_PASSWORD")
	role := flag.String("role", "student", "Login role: student|library (login)")
	library := flag.String("library", "", "Library ID (catalog/scan/mybooks)")
	query := flag.String("q", "", "Search term (catalog)")
	code := flag.String("code", "", "Decoded QR text, book id or ISBN (scan)")
	book := flag.String("book", "", "Book ID (return)")
	flag.Parse()
	if env := os.Getenv("JNY_SERVER"); env != "" {
		serverBaseURL = strings.TrimRight(env, "/")
	}
	if *serverFlag != "" {
		serverBaseURL = strings.TrimRight(*serverFlag, "/")
	}

	var err error
	switch *cmd {
	case "login":
		pw := *password
		if pw == "" {
			pw = os.Getenv("JNY_PASSWORD")
		}
		err = login(*email, pw, *role)
	case "logout":
		err = removeToken()
	case "libraries":
		err = getAndPrint("/api/v1/libraries")
	case "catalog":
		if err = need("library", *library); err == nil {
			err = getAndPrint("/api/v1/libraries/" + url.PathEscape(*library) + "/catalog?" + url.Values{"q": {*query}}.Encode())
		}
	case "scan":
		if err = need("library", *library); err == nil {
			if err = need("code", *code); err == nil {
				err = postAndPrint("/api/v1/libraries/"+url.PathEscape(*library)+"/scan", map[string]string{"code": *code})
			}
		}
	case "mybooks":
		if err = need("library", *library); err == nil {
			err = getAndPrint("/api/v1/libraries/" + url.PathEscape(*library) + "/mybooks")
		}
	case "notifications":
		err = getAndPrint("/api/v1/notifications")
	case "records":
		err = getAndPrint("/api/v1/library/records")
	case "return":
		if err = need("book", *book); err == nil {
			err = postAndPrint("/api/v1/library/books/"+url.PathEscape(*book)+"/return", nil)
		}
	default:
		err = fmt.Errorf("unknown command %q", *cmd)
	}
	if err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
}

func need(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("--%s required", name)
	}
	return nil
}

// ===== Token storage =====

func tokenPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".jnanayoni", "token"), nil
}

func saveToken(token string) error {
	path, err := tokenPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(token+"\n"), 0o600)
}

func loadToken() (string, error) {
	path, err := tokenPath()
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", errors.New("not logged in; run -cmd login first")
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func removeToken() error {
	path, err := tokenPath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	fmt.Println("Logged out.")
	return nil
}

// ===== API calls =====

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
		Role  string `json:"role"`
	} `json:"user"`
}

func login(email, password, role string) error {
	if err := need("email", email); err != nil {
		return err
	}
	if password == "" {
		return errors.New("--password or JNY_PASSWORD required")
	}
	body, status, err := do(http.MethodPost, "/api/v1/login", map[string]string{
		"email":    email,
		"password": password,
		"role":     role,
	}, false)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return apiError(status, body)
	}
	var resp loginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decode server response: %w", err)
	}
	if err := saveToken(resp.Token); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	fmt.Printf("Logged in as %s (%s), session valid until %s\n", resp.User.Name, resp.User.Role, resp.ExpiresAt.Local().Format(time.RFC1123))
	return nil
}

func getAndPrint(path string) error {
	body, status, err := do(http.MethodGet, path, nil, true)
	if err != nil {
		return err
	}
	return printResponse(status, body)
}

func postAndPrint(path string, payload any) error {
	body, status, err := do(http.MethodPost, path, payload, true)
	if err != nil {
		return err
	}
	return printResponse(status, body)
}

func do(method, path string, payload any, authed bool) ([]byte, int, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, serverBaseURL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		token, err := loadToken()
		if err != nil {
			return nil, 0, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	return b, resp.StatusCode, err
}

func printResponse(status int, body []byte) error {
	if status >= 300 {
		return apiError(status, body)
	}
	if len(body) == 0 {
		fmt.Println("OK")
		return nil
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		os.Stdout.Write(body)
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}

func apiError(status int, body []byte) error {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		if status == http.StatusUnauthorized {
			return fmt.Errorf("%s (status %d); try -cmd login", e.Error, status)
		}
		return fmt.Errorf("%s (status %d)", e.Error, status)
	}
	return fmt.Errorf("status %d: %s", status, strings.TrimSpace(string(body)))
}
