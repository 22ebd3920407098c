package sink

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/alxayo/omaf-creator/internal/omaf/data"
	"github.com/alxayo/omaf-creator/internal/omaf/errs"
	"github.com/alxayo/omaf-creator/internal/omaf/node"
)

// AzureSaveConfig parameterizes an AzureSave sink. Setting LocalDir writes
// a local copy alongside the upload (handy for debugging a failed upload
// without re-running the pipeline); leaving it empty uploads only.
type AzureSaveConfig struct {
	FileTemplate  string
	Disabled      bool
	LocalDir      string
	AccountURL    string
	ContainerName string
}

// AzureSave is a Save with the same filename-template contract, except the
// rendered segment is uploaded to Azure Blob Storage rather than (or, with
// LocalDir set, in addition to) written to the local filesystem.
type AzureSave struct {
	node.Base

	cfg      AzureSaveConfig
	seq      int
	prevName string
	client   *azblob.Client
}

// NewAzureSave validates cfg.FileTemplate up front and, if an account URL
// is configured, resolves Azure credentials via the default credential
// chain (environment, managed identity, Azure CLI, ...), matching how
// cmd/blob-sidecar authenticates.
func NewAzureSave(id node.ID, name string, cfg AzureSaveConfig) (*AzureSave, error) {
	if !cfg.Disabled {
		if err := validateTemplate(cfg.FileTemplate); err != nil {
			return nil, err
		}
	}

	a := &AzureSave{Base: node.NewBase(id, name), cfg: cfg, seq: 1}
	if cfg.AccountURL != "" {
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, errs.NewConfigError("sink.AzureSave", err)
		}
		client, err := azblob.NewClient(cfg.AccountURL, cred, nil)
		if err != nil {
			return nil, errs.NewConfigError("sink.AzureSave", err)
		}
		a.client = client
	}
	return a, nil
}

// HasInput renders this step's filename, then writes it locally (if
// LocalDir is set) and/or uploads it to the configured container.
func (a *AzureSave) HasInput(in data.Streams) {
	if in.IsEndOfStream() {
		a.SetInactive()
		return
	}
	if a.cfg.Disabled {
		return
	}

	name, err := applyTemplate(a.cfg.FileTemplate, a.seq)
	if err != nil {
		panic(err)
	}
	if name == a.prevName {
		panic(errs.NewConfigError("sink.AzureSave", fmt.Errorf("template %q resulted in overwriting the file just written", a.cfg.FileTemplate)))
	}

	var buf bytes.Buffer
	for _, d := range in {
		if err := writeStorage(&buf, d.Storage()); err != nil {
			panic(errs.NewCannotWriteFile("sink.AzureSave", name, err))
		}
	}

	if a.cfg.LocalDir != "" {
		path := filepath.Join(a.cfg.LocalDir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			panic(errs.NewCannotOpenFile("sink.AzureSave", path, err))
		}
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			panic(errs.NewCannotWriteFile("sink.AzureSave", path, err))
		}
	}

	if a.client != nil {
		ctx := context.Background()
		if _, err := a.client.UploadBuffer(ctx, a.cfg.ContainerName, name, buf.Bytes(), nil); err != nil {
			panic(errs.NewCannotWriteFile("sink.AzureSave", name, err))
		}
	}

	a.seq++
	a.prevName = name
}
