package definitions

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ormasoftchile/toolproof/pkg/engine"
	"github.com/ormasoftchile/toolproof/pkg/errs"
	"github.com/ormasoftchile/toolproof/pkg/hosting"
	"github.com/ormasoftchile/toolproof/pkg/segments"
)

func init() {
	registerInstruction(&serveDir{})
	registerInstruction(&debugServeDir{})
}

const bindAttempts = 5

// host binds a file server rooted at dir (under the civ's temp dir) on
// the civ's port, retrying on fresh ports when the bind fails, then
// registers the server and its accept loop with the civilization.
func host(dir string, civ *engine.Civilization) error {
	root, err := civ.TmpFilePath(dir)
	if err != nil {
		return err
	}

	var server *hosting.Server
	for attempt := 0; attempt < bindAttempts; attempt++ {
		port, err := civ.EnsurePort()
		if err != nil {
			return err
		}
		server, err = hosting.Bind(root, port)
		if err == nil {
			break
		}
		civ.Universe.Log.Debug("bind failed, retrying", zap.Int("port", port), zap.Error(err))
		civ.PurgePort()
		server = nil
	}
	if server == nil {
		return errs.Internalf("could not bind a server for %s after %d attempts", dir, bindAttempts)
	}

	civ.RegisterServer(server)
	civ.SpawnTask(func(ctx context.Context) {
		if err := server.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			civ.Universe.Log.Debug("server stopped", zap.Error(err))
		}
	})

	// Give the listener a beat to start accepting.
	time.Sleep(100 * time.Millisecond)
	return nil
}

// serveDir hosts a sandbox directory over HTTP for browser steps.
type serveDir struct{}

func (*serveDir) Segments() string {
	return "I serve the directory {dir}"
}

func (*serveDir) Run(ctx context.Context, args *segments.Args, civ *engine.Civilization) error {
	dir, err := args.GetString("dir")
	if err != nil {
		return err
	}
	return host(dir, civ)
}

// debugServeDir hosts a directory and holds it open so a human can poke
// at it.
type debugServeDir struct{}

func (*debugServeDir) Segments() string {
	return "I serve the directory {dir} and debug"
}

func (*debugServeDir) Run(ctx context.Context, args *segments.Args, civ *engine.Civilization) error {
	dir, err := args.GetString("dir")
	if err != nil {
		return err
	}
	if err := host(dir, civ); err != nil {
		return err
	}

	port, err := civ.EnsurePort()
	if err != nil {
		return err
	}
	fmt.Printf("----\nDirectory %s hosted at http://localhost:%d/ for 60s\n----\n", dir, port)

	select {
	case <-ctx.Done():
	case <-time.After(60 * time.Second):
	}
	return nil
}
