package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ahrav/castverify/internal/domain/engagement"
	"github.com/ahrav/castverify/internal/infra/neynar"
)

func newCheckCmd(opts *rootOptions) *cobra.Command {
	var (
		actorFlag  int64
		actionFlag string
	)

	cmd := &cobra.Command{
		Use:   "check <reference>",
		Short: "Run one verification pass for an actor, action and cast reference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor := engagement.ActorID(actorFlag)
			if !actor.Valid() {
				return fmt.Errorf("--actor: %w", engagement.ErrInvalidActor)
			}
			action, err := engagement.ParseActionKind(actionFlag)
			if err != nil {
				return fmt.Errorf("--action: %w", err)
			}

			ctx := cmd.Context()
			env, err := setup(ctx, opts, false)
			if err != nil {
				return err
			}
			defer env.teardown(context.WithoutCancel(ctx))

			eng, err := buildEngine(env)
			if err != nil {
				return err
			}
			defer eng.Close()

			ref := engagement.ContentReference(args[0])
			res, err := eng.verifier.Verify(ctx, ref, actor, action)
			out := cmd.OutOrStdout()
			if err != nil {
				var rerr *engagement.ResolutionError
				if errors.As(err, &rerr) {
					fmt.Fprintf(out, "could not resolve %s\nsearch it manually: %s\n", ref, rerr.ExplorerURL())
				}
				return err
			}

			verdict := "not found"
			if res.Found {
				verdict = "found"
			}
			fmt.Fprintf(out, "%s by %d on %s: %s (passes=%d)\n", action, actor, res.ContentID, verdict, res.Passes)
			return nil
		},
	}
	cmd.Flags().Int64Var(&actorFlag, "actor", 0, "actor fid")
	cmd.Flags().StringVar(&actionFlag, "action", "", "like, recast or comment")
	_ = cmd.MarkFlagRequired("actor")
	_ = cmd.MarkFlagRequired("action")
	return cmd
}

func newResolveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <reference>",
		Short: "Print the canonical content id of a cast reference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env, err := setup(ctx, opts, false)
			if err != nil {
				return err
			}
			defer env.teardown(context.WithoutCancel(ctx))

			eng, err := buildEngine(env)
			if err != nil {
				return err
			}
			defer eng.Close()

			ref := engagement.ContentReference(args[0])
			id, err := eng.content.Canonicalize(ctx, ref)
			if err != nil {
				var rerr *engagement.ResolutionError
				if errors.As(err, &rerr) {
					fmt.Fprintf(cmd.OutOrStdout(), "search it manually: %s\n", rerr.ExplorerURL())
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}

func newUserCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "user <fid|@username>",
		Short: "Look up the account behind an actor fid or username",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env, err := setup(ctx, opts, false)
			if err != nil {
				return err
			}
			defer env.teardown(context.WithoutCancel(ctx))

			eng, err := buildEngine(env)
			if err != nil {
				return err
			}
			defer eng.Close()

			var user neynar.User
			if fid, perr := strconv.ParseInt(args[0], 10, 64); perr == nil {
				if !engagement.ActorID(fid).Valid() {
					return engagement.ErrInvalidActor
				}
				user, err = eng.client.UserByFID(ctx, engagement.ActorID(fid))
			} else {
				user, err = eng.client.UserByUsername(ctx, args[0])
			}
			if err != nil {
				return fmt.Errorf("looking up %s: %w", args[0], err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "fid=%d username=%s avatar=%s\n", user.FID, user.Username, user.AvatarURL)
			return nil
		},
	}
}
