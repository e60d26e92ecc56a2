package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/homecloud/internal/client/client"
	"github.com/dmitrijs2005/homecloud/internal/client/models"
	"github.com/dmitrijs2005/homecloud/internal/client/services"
	"github.com/dmitrijs2005/homecloud/internal/client/vault"
	"github.com/dmitrijs2005/homecloud/internal/common"
	"github.com/dmitrijs2005/homecloud/internal/filex"
)

var errPassphraseMismatch = errors.New("passphrases do not match")

// usageError is printed as is.
type usageError string

func (u usageError) Error() string { return "usage: " + string(u) }

// describe turns an error into a line for the user.
func describe(err error) string {
	var sle *common.SizeLimitError
	var apiErr *client.APIError
	switch {
	case errors.As(err, &sle):
		return fmt.Sprintf("file is too large, the server accepts at most %d bytes", sle.Max)
	case errors.Is(err, common.ErrWrongPassphrase):
		return "wrong passphrase"
	case errors.Is(err, common.ErrVaultLocked):
		return "vault is locked, run 'unlock' first"
	case errors.Is(err, common.ErrTokenExpired):
		return "access token expired, get a new one and restart"
	case errors.Is(err, client.ErrUnavailable):
		return "server is unreachable, try again later"
	case errors.Is(err, common.ErrBackendUnavailable):
		if errors.As(err, &apiErr) && apiErr.RetryAfter != "" {
			return fmt.Sprintf("storage is temporarily unavailable, retry in %ss", apiErr.RetryAfter)
		}
		return "storage is temporarily unavailable, try again later"
	}
	return err.Error()
}

func (a *App) VaultStatus(ctx context.Context, args []string) error {
	if err := a.vault.Load(ctx); err != nil {
		return err
	}
	printlnFn("Vault:", a.vault.State().String())
	if id := a.vault.FolderID(); id != "" {
		printlnFn("Vault folder:", id)
	}
	return nil
}

// Unlock asks for the passphrase. When no envelope exists yet it is asked
// twice, since a forgotten passphrase cannot be recovered.
func (a *App) Unlock(ctx context.Context, args []string) error {
	if a.vault.State() == vault.StateLoading {
		if err := a.vault.Load(ctx); err != nil {
			return err
		}
	}

	switch a.vault.State() {
	case vault.StateUnlocked:
		printlnFn("Vault is already unlocked")
		return nil
	case vault.StateSetup:
		printlnFn("No vault yet. The passphrase you choose now cannot be recovered.")
	}

	pass, err := GetPassword(a.out, "Vault passphrase")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pass)

	if a.vault.State() == vault.StateSetup {
		again, err := GetPassword(a.out, "Repeat passphrase")
		if err != nil {
			return err
		}
		defer common.WipeByteArray(again)
		if !bytes.Equal(pass, again) {
			return errPassphraseMismatch
		}
	}

	if err := a.vault.Unlock(ctx, pass); err != nil {
		return err
	}
	printlnFn("Vault unlocked")
	return nil
}

func (a *App) Lock(ctx context.Context, args []string) error {
	a.vault.Lock()
	printlnFn("Vault locked")
	return nil
}

func (a *App) Upload(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return usageError("upload <path> [folderId]")
	}
	opts := services.UploadOptions{}
	if len(args) == 2 {
		opts.TargetFolderID = args[1]
	}
	return a.upload(ctx, args[0], opts)
}

func (a *App) VaultUpload(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("vupload <path>")
	}
	if a.vault.State() != vault.StateUnlocked {
		return common.ErrVaultLocked
	}
	return a.upload(ctx, args[0], services.UploadOptions{Vault: true})
}

func (a *App) upload(ctx context.Context, path string, opts services.UploadOptions) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}

	opts.Name = filepath.Base(path)
	opts.Mime = mime.TypeByExtension(filepath.Ext(path))
	opts.Progress = func(p int) {
		fmt.Fprintf(a.out, "\r%3d%%", p)
	}

	res, err := a.files.Upload(ctx, f, fi.Size(), opts)
	fmt.Fprintln(a.out)
	if err != nil {
		return err
	}
	printlnFn(fmt.Sprintf("Uploaded %s as %s, version %d", res.File.Name, res.File.ID, res.Version.Version))
	return nil
}

func (a *App) Download(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 3 {
		return usageError("download <fileId> [version] [dest]")
	}
	fileID := args[0]

	var version int64
	if len(args) > 1 {
		v, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || v < 0 {
			return usageError("download <fileId> [version] [dest]")
		}
		version = v
	}

	dest := filepath.Join(a.downloadDir, fileID)
	if len(args) > 2 {
		dest = args[2]
	}

	var d *models.Download
	err := filex.WriteAtomic(dest, func(w io.Writer) error {
		var err error
		d, err = a.files.Download(ctx, fileID, version, w)
		return err
	})
	if err != nil {
		return err
	}
	printlnFn(fmt.Sprintf("Saved version %d to %s", d.Version, dest))
	return nil
}

func (a *App) Versions(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("versions <fileId>")
	}
	vs, err := a.files.Versions(ctx, args[0])
	if err != nil {
		return err
	}
	if len(vs) == 0 {
		printlnFn("No versions")
		return nil
	}
	for _, v := range vs {
		printlnFn(fmt.Sprintf("v%-4d %10d  %s  %s", v.Version, v.Size, v.CreatedAt.Format("2006-01-02 15:04:05"), v.ContentHash))
	}
	return nil
}

func (a *App) Delete(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 || (len(args) == 2 && args[1] != "purge") {
		return usageError("delete <fileId> [purge]")
	}
	purge := len(args) == 2
	if purge && !Confirm(a.reader, "Delete "+args[0]+" and all its versions permanently?", a.out) {
		printlnFn("Cancelled")
		return nil
	}
	if err := a.files.Delete(ctx, args[0], purge); err != nil {
		return err
	}
	if purge {
		printlnFn("Deleted permanently")
	} else {
		printlnFn("Moved to trash")
	}
	return nil
}

func (a *App) Restore(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("restore <fileId>")
	}
	if err := a.files.Restore(ctx, args[0]); err != nil {
		return err
	}
	printlnFn("Restored")
	return nil
}

func (a *App) Move(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usageError("move <fileId> <folderId>")
	}
	if err := a.files.Move(ctx, args[0], args[1]); err != nil {
		return err
	}
	printlnFn("Moved")
	return nil
}

func (a *App) Pull(ctx context.Context, args []string) error {
	n, err := a.sync.Pull(ctx, func(ev models.SyncEvent) error {
		line := fmt.Sprintf("#%d %s %s %s", ev.ID, ev.Action, ev.EntityType, ev.EntityID)
		if len(ev.Data) > 0 {
			line += " " + strings.TrimSpace(string(ev.Data))
		}
		printlnFn(line)
		return nil
	})
	if err != nil {
		return err
	}
	cursor, err := a.sync.Cursor(ctx)
	if err != nil {
		return err
	}
	printlnFn(fmt.Sprintf("%d new events, cursor at %d", n, cursor))
	return nil
}
