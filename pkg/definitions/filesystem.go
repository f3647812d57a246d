package definitions

import (
	"context"

	"github.com/ormasoftchile/toolproof/pkg/engine"
	"github.com/ormasoftchile/toolproof/pkg/errs"
	"github.com/ormasoftchile/toolproof/pkg/segments"
)

func init() {
	registerInstruction(&newFile{})
	registerRetriever(&plainFile{})
}

// newFile writes a file into the test's sandbox.
type newFile struct{}

func (*newFile) Segments() string {
	return "I have a {filename} file with the content {contents}"
}

func (*newFile) Run(ctx context.Context, args *segments.Args, civ *engine.Civilization) error {
	filename, err := args.GetString("filename")
	if err != nil {
		return err
	}
	if filename == "" {
		return errs.Input(&errs.ArgumentRequiresValue{Arg: "filename"})
	}

	contents, err := args.GetString("contents")
	if err != nil {
		return err
	}

	return civ.WriteFile(filename, contents)
}

// plainFile retrieves a sandbox file's contents as a string.
type plainFile struct{}

func (*plainFile) Segments() string {
	return "The file {filename}"
}

func (*plainFile) Run(ctx context.Context, args *segments.Args, civ *engine.Civilization) (any, error) {
	filename, err := args.GetString("filename")
	if err != nil {
		return nil, err
	}
	if filename == "" {
		return nil, errs.Input(&errs.ArgumentRequiresValue{Arg: "filename"})
	}

	contents, err := civ.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return contents, nil
}
