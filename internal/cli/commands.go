package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/vlesskeeper/internal/common"
	"github.com/dmitrijs2005/vlesskeeper/internal/server/auth"
	"github.com/urfave/cli/v2"
)

func (a *App) add(cCtx *cli.Context) error {
	username, err := oneArg(cCtx, "username")
	if err != nil {
		return err
	}

	var externalID *int64
	if cCtx.IsSet(flagExternalID.Name) {
		id := cCtx.Int64(flagExternalID.Name)
		externalID = &id
	}

	svc, err := a.service(cCtx)
	if err != nil {
		return err
	}

	res, err := svc.Add(cCtx.Context, username, externalID)
	if err != nil {
		return fmt.Errorf("add %s: %w", username, err)
	}

	a.warnReload("created", res.Reloaded, res.ReloadErr)
	if !res.Address.Resolved || !res.PublicKey.Resolved {
		fmt.Fprintln(a.errOut, "warning: server metadata unavailable, link contains placeholders")
	}
	return a.printUsers(cCtx, res.User)
}

func (a *App) warnReload(action string, reloaded bool, err error) {
	switch {
	case err != nil:
		fmt.Fprintf(a.errOut, "warning: user %s but proxy reload failed: %v\n", action, err)
	case !reloaded:
		fmt.Fprintf(a.errOut, "warning: user %s but proxy was not reloaded\n", action)
	}
}

func (a *App) remove(cCtx *cli.Context) error {
	username, err := oneArg(cCtx, "username")
	if err != nil {
		return err
	}

	svc, err := a.service(cCtx)
	if err != nil {
		return err
	}

	res, err := svc.Remove(cCtx.Context, username)
	if err != nil {
		return fmt.Errorf("remove %s: %w", username, err)
	}
	if !res.Removed {
		return fmt.Errorf("remove %s: %w", username, common.ErrorNotFound)
	}
	a.warnReload("removed", res.Reloaded, res.ReloadErr)

	if a.jsonOutput(cCtx) {
		return a.printJSON(map[string]bool{"removed": true, "reloaded": res.Reloaded})
	}
	fmt.Fprintf(a.out, "removed %s\n", username)
	return nil
}

func (a *App) show(cCtx *cli.Context) error {
	username, err := oneArg(cCtx, "username")
	if err != nil {
		return err
	}

	svc, err := a.service(cCtx)
	if err != nil {
		return err
	}

	u, err := svc.Get(cCtx.Context, username)
	if err != nil {
		return fmt.Errorf("show %s: %w", username, err)
	}
	return a.printUsers(cCtx, *u)
}

func (a *App) link(cCtx *cli.Context) error {
	username, err := oneArg(cCtx, "username")
	if err != nil {
		return err
	}

	svc, err := a.service(cCtx)
	if err != nil {
		return err
	}

	link, err := svc.Descriptor(cCtx.Context, username)
	if err != nil {
		return fmt.Errorf("link %s: %w", username, err)
	}

	if a.jsonOutput(cCtx) {
		return a.printJSON(map[string]string{"link": link})
	}
	fmt.Fprintln(a.out, link)
	return nil
}

func (a *App) list(cCtx *cli.Context) error {
	svc, err := a.service(cCtx)
	if err != nil {
		return err
	}

	users, err := svc.List(cCtx.Context)
	if err != nil {
		return fmt.Errorf("list: %w", err)
	}
	return a.printUsers(cCtx, users...)
}

func (a *App) token(cCtx *cli.Context) error {
	arg, err := oneArg(cCtx, "external-id")
	if err != nil {
		return err
	}
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: invalid external id %q", ErrUsage, arg)
	}

	if err := a.cfg.CheckSecretKey(); err != nil {
		return err
	}

	validity := a.cfg.TokenValidityDuration
	if cCtx.IsSet(flagValidity.Name) {
		validity = cCtx.Duration(flagValidity.Name)
	}

	tok, err := auth.GenerateToken(id, []byte(a.cfg.SecretKey), validity)
	if err != nil {
		return err
	}

	if a.jsonOutput(cCtx) {
		return a.printJSON(map[string]string{
			"token":      tok,
			"expires_at": time.Now().Add(validity).UTC().Format(time.RFC3339),
		})
	}
	fmt.Fprintln(a.out, tok)
	return nil
}
