package render

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Surface serves composed report pages to the headless browser over a
// loopback listener. Pages are registered under single-use tokens so the
// browser can only reach documents the render stage just produced.
type Surface struct {
	server   *http.Server
	listener net.Listener

	mu    sync.Mutex
	pages map[string]string
}

// NewSurface starts the composition surface on an ephemeral loopback port.
func NewSurface() (*Surface, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to open composition listener: %w", err)
	}

	s := &Surface{
		listener: listener,
		pages:    make(map[string]string),
	}

	router := chi.NewRouter()
	router.Get("/compose/{token}", s.servePage)

	s.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() { _ = s.server.Serve(listener) }()

	return s, nil
}

// Register stores a composed page and returns the URL the browser should
// navigate to. The caller must Release the token after capture.
func (s *Surface) Register(html string) (url, token string) {
	token = uuid.New().String()
	s.mu.Lock()
	s.pages[token] = html
	s.mu.Unlock()
	return fmt.Sprintf("http://%s/compose/%s", s.listener.Addr(), token), token
}

// Release drops a registered page.
func (s *Surface) Release(token string) {
	s.mu.Lock()
	delete(s.pages, token)
	s.mu.Unlock()
}

func (s *Surface) servePage(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	s.mu.Lock()
	page, ok := s.pages[token]
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(page))
}

// Addr returns the surface's loopback address.
func (s *Surface) Addr() string {
	return s.listener.Addr().String()
}

// Close shuts the surface down.
func (s *Surface) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
