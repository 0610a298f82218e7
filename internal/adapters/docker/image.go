package docker

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/errdefs"
)

// ensureImage pulls ref unless the daemon already has it. The SDK does not
// pull implicitly on create the way `docker run` does.
func (a *Adapter) ensureImage(ctx context.Context, ref string) error {
	inspectCtx, cancel := context.WithTimeout(ctx, a.timeout)
	_, _, err := a.cli.ImageInspectWithRaw(inspectCtx, ref)
	cancel()
	if err == nil {
		return nil
	}
	if !errdefs.IsNotFound(err) {
		return wrapErr(inspectCtx, "inspect image", ref, err)
	}

	a.logger.Info().Str("image", ref).Dur("timeout", a.pullTimeout).Msg("Pulling image")
	pullCtx, cancel := context.WithTimeout(ctx, a.pullTimeout)
	defer cancel()

	reader, err := a.cli.ImagePull(pullCtx, ref, types.ImagePullOptions{})
	if err != nil {
		return wrapErr(pullCtx, "pull", ref, err)
	}
	defer reader.Close()

	// The pull only completes once the progress stream is drained.
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return wrapErr(pullCtx, "pull", ref, fmt.Errorf("reading pull progress: %w", err))
	}
	a.logger.Info().Str("image", ref).Msg("Image pulled")
	return nil
}
