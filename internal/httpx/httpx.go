// Package httpx holds the JSON request/response helpers shared by every handler.
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const MaxJSONBodyBytes = 1 << 20

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

var ErrInvalidJSON = errors.New("invalid json body")

type ValidationError struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

type Page struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

func (p Page) Offset() int {
	return (p.Page - 1) * p.PageSize
}

type PagedResult[T any] struct {
	Items    []T `json:"items"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Total    int `json:"total"`
}

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}

func WriteValidation(w http.ResponseWriter, fields map[string]string) {
	WriteJSON(w, http.StatusUnprocessableEntity, ValidationError{Error: "validation failed", Fields: fields})
}

// DecodeJSON reads a single JSON object into dst, rejecting unknown fields and
// bodies larger than MaxJSONBodyBytes.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return ErrInvalidJSON
	}
	return nil
}

// ParsePage reads page and page_size from the query string, clamping them to
// sane bounds instead of failing.
func ParsePage(r *http.Request) Page {
	page := queryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}
	size := queryInt(r, "page_size", defaultPageSize)
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return Page{Page: page, PageSize: size}
}

func queryInt(r *http.Request, name string, fallback int) int {
	value := strings.TrimSpace(r.URL.Query().Get(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

type clientIPKey struct{}

// TrustedProxies resolves the client address once per request. With hops > 0
// it reads X-Forwarded-For and skips the entries appended by the trusted
// proxies in front of the service; with hops == 0 the header is ignored.
func TrustedProxies(hops int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := resolveClientIP(r, hops)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientIPKey{}, ip)))
		})
	}
}

// ClientIP returns the address resolved by TrustedProxies, or the peer
// address without its port when the middleware did not run.
func ClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPKey{}).(string); ok && ip != "" {
		return ip
	}
	return resolveClientIP(r, 0)
}

func resolveClientIP(r *http.Request, hops int) string {
	if hops > 0 {
		var entries []string
		for _, part := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
			if part = strings.TrimSpace(part); part != "" {
				entries = append(entries, part)
			}
		}
		if len(entries) >= hops {
			if ip := hostIP(entries[len(entries)-hops]); ip != "" {
				return ip
			}
		}
	}

	if ip := hostIP(r.RemoteAddr); ip != "" {
		return ip
	}
	return "unknown"
}

func hostIP(addr string) string {
	addr = strings.TrimSpace(addr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	ip := net.ParseIP(strings.Trim(addr, "[]"))
	if ip == nil {
		return ""
	}
	return ip.String()
}

// PathUUID reads a UUID route parameter, answering 400 when it is malformed.
func PathUUID(w http.ResponseWriter, r *http.Request, param, label string) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, param))
	if _, err := uuid.Parse(id); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid "+label+" id")
		return "", false
	}
	return id, true
}
