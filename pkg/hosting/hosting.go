// Package hosting serves a directory of static files for browser steps.
// Binding and serving are split so callers can retry binds on fresh ports
// and register the serve loop as a civilization background task.
package hosting

import (
	"fmt"
	"net"
	"net/http"
	"time"
)

// Server is one bound static file server.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Bind reserves the port and prepares the file server rooted at dir with
// index.html as the default file. The caller decides when to start
// serving.
func Bind(dir string, port int) (*Server, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, fmt.Errorf("hosting: bind port %d: %w", port, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.Dir(dir)))

	srv := &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return &Server{srv: srv, ln: ln}, nil
}

// Serve runs the accept loop until Shutdown. It always returns a non-nil
// error; http.ErrServerClosed marks a clean shutdown.
func (s *Server) Serve() error {
	return s.srv.Serve(s.ln)
}

// Shutdown stops the server without waiting for pending requests.
func (s *Server) Shutdown() {
	_ = s.srv.Close()
}

// Port reports the bound port.
func (s *Server) Port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}
