/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"listingstudio/internal/batch"
	"listingstudio/internal/config"
	"listingstudio/internal/crash"
	"listingstudio/internal/domain"
	"listingstudio/internal/export"
	applog "listingstudio/internal/log"
	"listingstudio/internal/raster"
	"listingstudio/internal/session"
	"listingstudio/internal/storage"
	"listingstudio/internal/telemetry"
	"listingstudio/internal/version"
)

func usage() {
	fmt.Println("Listing Studio")
	fmt.Printf("Version: %s\n", version.String())
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  listingstudio version|-v|--version                     Show version")
	fmt.Println("  listingstudio render <src> <out> [params.json]          Render one image to a file")
	fmt.Println("  listingstudio save <item> <params.json> <ref>...        Edit the first image, upload it and record its state")
	fmt.Println("  listingstudio apply-all <item> <params.json> <ref>...   Save the first image and apply its look to the rest")
	fmt.Println("  listingstudio reset <item> <ref>...                     Put the original images back")
	fmt.Println("  listingstudio templates list|save <name> <params.json>|delete <id>")
	fmt.Println("  listingstudio sheet <out.pdf> <params.json|-> <ref>...  Render images onto a PDF contact sheet")
	fmt.Println("  listingstudio token set <token>|clear                   Manage the upload token in the OS keychain")
	fmt.Println("  listingstudio config path|init                          Show or write the config file")
}

// current lets the crash handler dump whatever session is open.
type current struct{ s *session.Session }

func (c *current) Snapshot() map[string]domain.EditParams {
	if c.s == nil {
		return nil
	}
	return c.s.Snapshot()
}

func main() {
	code := run(os.Args[1:])
	_ = applog.Close()
	os.Exit(code)
}

func run(args []string) int {
	cfg, cfgErr := loadConfig()
	initLogging(cfg)
	l := applog.WithComponent("cli")

	cur := &current{}
	defer crash.Recover(crashDir(), cur)

	if len(args) == 0 {
		usage()
		return 2
	}
	l.Debug("start", slog.String("cmd", args[0]), slog.Int("args", len(args)))
	tel := telemetry.Default()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		tel.Flush(ctx)
		cancel()
		tel.Close()
	}()
	tel.Event("command", map[string]any{"cmd": args[0]})
	switch args[0] {
	case "version", "--version", "-v":
		fmt.Println(version.String())
		return 0
	case "config":
		return cmdConfig(args[1:], cfg)
	case "token":
		return report(l, cmdToken(args[1:]))
	}
	if cfgErr != nil {
		l.Error("config", slog.Any("err", cfgErr))
		fmt.Println("Error:", cfgErr)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if args[0] == "render" {
		return report(l, cmdRender(ctx, cfg, args[1:]))
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		l.Error("startup failed", slog.Any("err", err))
		fmt.Println("Error:", err)
		return 1
	}
	defer a.Close()

	switch args[0] {
	case "save":
		err = cmdSave(ctx, a, cur, args[1:], false)
	case "apply-all":
		err = cmdSave(ctx, a, cur, args[1:], true)
	case "reset":
		err = cmdReset(ctx, a, cur, args[1:])
	case "templates":
		err = cmdTemplates(ctx, a, args[1:])
	case "sheet":
		err = cmdSheet(ctx, a, args[1:])
	default:
		err = errUsage
	}
	return report(l, err)
}

func report(l *slog.Logger, err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		usage()
		return 2
	default:
		l.Error("command failed", slog.Any("err", err))
		fmt.Println("Error:", err)
		return 1
	}
}

func cmdConfig(args []string, cfg config.AppConfig) int {
	path, err := config.ConfigPath()
	if err != nil {
		fmt.Println("Error:", err)
		return 1
	}
	switch {
	case len(args) == 1 && args[0] == "path":
		fmt.Println(path)
	case len(args) == 1 && args[0] == "init":
		if _, err := os.Stat(path); err == nil {
			fmt.Println("Config already exists at", path)
			return 0
		}
		if err := config.SaveFile(path, cfg); err != nil {
			fmt.Println("Error:", err)
			return 1
		}
		fmt.Println("Wrote", path)
	default:
		usage()
		return 2
	}
	return 0
}

func cmdToken(args []string) error {
	switch {
	case len(args) == 2 && args[0] == "set":
		return config.SetUploadToken(args[1])
	case len(args) == 1 && args[0] == "clear":
		return config.SetUploadToken("")
	}
	return errUsage
}

func cmdRender(ctx context.Context, cfg config.AppConfig, args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return errUsage
	}
	var paramsPath string
	if len(args) == 3 {
		paramsPath = args[2]
	}
	p, err := readParams(paramsPath)
	if err != nil {
		return err
	}
	opts := raster.Options{Quality: cfg.Editor.JPEGQuality}
	if strings.EqualFold(filepath.Ext(args[1]), ".png") {
		opts.Format = raster.PNG
	}
	r := raster.New(opts)
	defer r.Close()
	data, err := r.RenderRef(ctx, args[0], p)
	if err != nil {
		return err
	}
	if err := storage.WriteFileAtomic(args[1], data, 0o644); err != nil {
		return err
	}
	fmt.Printf("Wrote %s (%d bytes)\n", args[1], len(data))
	return nil
}

func cmdSave(ctx context.Context, a *app, cur *current, args []string, all bool) error {
	if len(args) < 3 {
		return errUsage
	}
	p, err := readParams(args[1])
	if err != nil {
		return err
	}
	s, err := a.openSession(ctx, args[0], args[2:])
	if err != nil {
		return err
	}
	cur.s = s
	defer s.Close()

	applyParams(s, p)
	url, err := s.SaveActive(ctx)
	if err != nil {
		return err
	}
	fmt.Println("Saved image 1 ->", url)
	if !all {
		return nil
	}
	res, err := s.ApplyToAll(ctx, func(pr batch.Progress) {
		fmt.Printf("\rApplying %d/%d", pr.Done, pr.Total)
	})
	fmt.Println()
	if err != nil {
		return err
	}
	for _, f := range res.Failed {
		fmt.Printf("Skipped image %d (%s): %v\n", f.Index+1, f.Ref, f.Err)
	}
	telemetry.Event("apply_all", map[string]any{"ok": len(res.Succeeded), "skipped": res.Skipped()})
	fmt.Printf("Applied to %d of %d images\n", len(res.Succeeded), res.Total)
	return nil
}

func cmdReset(ctx context.Context, a *app, cur *current, args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	s, err := a.openSession(ctx, args[0], args[1:])
	if err != nil {
		return err
	}
	cur.s = s
	defer s.Close()
	if err := s.ResetAllImages(ctx); err != nil {
		return err
	}
	for i, ref := range s.Refs() {
		fmt.Printf("%d: %s\n", i+1, ref)
	}
	return nil
}

func cmdTemplates(ctx context.Context, a *app, args []string) error {
	switch {
	case len(args) == 1 && args[0] == "list":
		list, err := a.tpl.List(ctx)
		if err != nil {
			return err
		}
		for _, t := range list {
			fmt.Printf("%s  %s\n", t.ID, t.Name)
		}
		return nil
	case len(args) == 3 && args[0] == "save":
		p, err := readParams(args[2])
		if err != nil {
			return err
		}
		t, err := a.tpl.Save(ctx, args[1], p)
		if err != nil {
			return err
		}
		fmt.Println("Saved template", t.ID)
		return nil
	case len(args) == 2 && args[0] == "delete":
		return a.tpl.Delete(ctx, args[1])
	}
	return errUsage
}

func cmdSheet(ctx context.Context, a *app, args []string) error {
	if len(args) < 3 {
		return errUsage
	}
	var paramsPath string
	if args[1] != "-" {
		paramsPath = args[1]
	}
	p, err := readParams(paramsPath)
	if err != nil {
		return err
	}
	l := applog.WithOperation(applog.WithComponent("cli"), "sheet")
	var imgs []export.SheetImage
	for _, ref := range args[2:] {
		data, err := a.renderer.RenderRef(ctx, ref, p)
		if err != nil {
			l.Warn("image skipped", "ref", ref, "err", err)
			continue
		}
		a.renderer.Sources().Release(ref)
		imgs = append(imgs, export.SheetImage{Name: storage.Basename(ref), Data: data})
	}
	opts := export.DefaultSheetOptions()
	opts.Title = filepath.Base(args[0])
	if err := export.ContactSheetPDF(args[0], imgs, opts); err != nil {
		return err
	}
	fmt.Printf("Wrote %s (%d images)\n", args[0], len(imgs))
	return nil
}
