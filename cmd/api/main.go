/* Copyright (c) 2020 OpenCraft <https://opencraft.com>
 * SPDX-License-Identifier: AGPL-3.0 */
package main

import (
    "context"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/open-craft/sprints/internal/adapters/gcal"
    "github.com/open-craft/sprints/internal/adapters/jira"
    "github.com/open-craft/sprints/internal/adapters/mattermost"
    "github.com/open-craft/sprints/internal/adapters/openai"
    "github.com/open-craft/sprints/internal/config"
    "github.com/open-craft/sprints/internal/http"
    "github.com/open-craft/sprints/internal/jobs"
    "github.com/open-craft/sprints/internal/logger"
    "github.com/open-craft/sprints/internal/repo"
    "github.com/open-craft/sprints/internal/services"
)

func main() {
    cfg := config.Load()
    log := logger.New(cfg)
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    engine, err := cfg.Engine()
    if err != nil { log.Fatal().Err(err).Msg("invalid capacity configuration") }

    db := repo.MustOpen(ctx, cfg, log)
    defer db.Close()
    repository := repo.NewRepository(db, log)
    if err := repository.EnsureSchema(ctx); err != nil { log.Fatal().Err(err).Msg("schema migration failed") }

    tracker := jira.NewClient(cfg, log)
    absences := gcal.NewClient(cfg, log)
    notifier := mattermost.NewClient(cfg, log)
    llm := openai.NewClient(cfg, log)

    svc := services.New(cfg, log, engine, repository, tracker, absences, notifier, llm)

    router := http.NewRouter(cfg, log, svc)

    cron := jobs.NewCron(cfg, log, svc, repository)
    cron.Start()
    defer cron.Stop()

    errCh := make(chan error, 1)
    go func() { errCh <- router.Run(cfg.HTTPAddr) }()

    sigCh := make(chan os.Signal, 1)
    signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

    select {
    case <-sigCh:
        log.Info().Msg("shutting down...")
    case err := <-errCh:
        if err != nil { log.Error().Err(err).Msg("http server error") }
    }

    time.Sleep(500 * time.Millisecond)
}
