//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2024 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"github.com/weaviate/textindex/adapters/repos/db"
	"github.com/weaviate/textindex/adapters/repos/db/searcher"
	"github.com/weaviate/textindex/adapters/repos/db/segment"
	"github.com/weaviate/textindex/usecases/config"
)

type env struct {
	out    io.Writer
	cfg    config.Config
	logger *logrus.Logger
}

func newApp(out io.Writer) *cli.App {
	e := &env{out: out}
	return &cli.App{
		Name:      "textindex",
		Usage:     "inspect and maintain a text index directory",
		Writer:    out,
		ErrWriter: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "yaml or json config file",
				EnvVars: []string{"TEXTINDEX_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: "info",
				Usage: "one of panic, fatal, error, warn, info, debug, trace",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Value: config.LogFormatText,
				Usage: "text or json",
			},
		},
		Before: e.setup,
		Commands: []*cli.Command{
			{
				Name:      "inspect",
				Usage:     "print the committed segments with their doc counts",
				ArgsUsage: "<dir>",
				Action:    e.inspect,
			},
			{
				Name:      "merge",
				Usage:     "merge all committed segments into one and commit",
				ArgsUsage: "<dir>",
				Action:    e.merge,
			},
			{
				Name:      "gc",
				Usage:     "delete the managed files no commit references",
				ArgsUsage: "<dir>",
				Action:    e.gc,
			},
		},
	}
}

func (e *env) setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	cfg.Logging.Level = c.String("log-level")
	cfg.Logging.Format = c.String("log-format")
	if err := cfg.Logging.Validate(); err != nil {
		return err
	}
	logger, err := cfg.Logging.Logger()
	if err != nil {
		return err
	}
	e.cfg, e.logger = cfg, logger
	return nil
}

func (e *env) open(c *cli.Context) (*db.Index, error) {
	if c.NArg() != 1 {
		return nil, fmt.Errorf("%s expects exactly one index directory, got %d arguments",
			c.Command.Name, c.NArg())
	}
	idx, err := db.OpenFS(c.Args().First(), nil, e.cfg, e.logger, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "open index %q", c.Args().First())
	}
	return idx, nil
}

func (e *env) inspect(c *cli.Context) error {
	idx, err := e.open(c)
	if err != nil {
		return err
	}
	defer idx.Close(c.Context)

	r, err := idx.Reader(searcher.Manual)
	if err != nil {
		return err
	}
	s, err := r.Searcher()
	if err != nil {
		return err
	}
	defer s.Release()

	fmt.Fprintf(e.out, "opstamp: %d\n", s.Opstamp())
	fmt.Fprintf(e.out, "fields: %d\n", idx.Schema().Len())
	for _, f := range idx.Schema().Fields() {
		fmt.Fprintf(e.out, "  %s (%s)\n", f.Name, f.Type)
	}

	segments := s.Segments()
	fmt.Fprintf(e.out, "segments: %d\n", len(segments))
	tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEGMENT\tMAX_DOC\tDELETED\tALIVE")
	var alive uint64
	for _, seg := range segments {
		m := seg.Meta()
		alive += uint64(m.NumDocs())
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", m.ID.Short(), m.MaxDoc, m.NumDeleted(), m.NumDocs())
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "alive docs: %d\n", alive)
	return nil
}

func (e *env) merge(c *cli.Context) error {
	idx, err := e.open(c)
	if err != nil {
		return err
	}
	defer idx.Close(c.Context)

	w, err := idx.Writer()
	if err != nil {
		return err
	}
	defer w.Close(c.Context)

	segments := w.CommittedMeta().Segments
	if len(segments) < 2 {
		fmt.Fprintf(e.out, "nothing to merge, %d segment(s)\n", len(segments))
		return nil
	}
	var ids []segment.ID
	for _, m := range segments {
		ids = append(ids, m.ID)
	}
	out, err := w.Merge(c.Context, ids)
	if err != nil {
		return errors.Wrap(err, "merge segments")
	}
	fmt.Fprintf(e.out, "merged %d segments into %s with %d docs\n", len(ids), out.ID.Short(), out.NumDocs())
	return nil
}

func (e *env) gc(c *cli.Context) error {
	idx, err := e.open(c)
	if err != nil {
		return err
	}
	defer idx.Close(c.Context)

	w, err := idx.Writer()
	if err != nil {
		return err
	}
	defer w.Close(c.Context)

	removed, err := w.GarbageCollectFiles()
	if err != nil {
		return errors.Wrap(err, "collect garbage")
	}
	for _, name := range removed {
		fmt.Fprintln(e.out, name)
	}
	fmt.Fprintf(e.out, "removed %d file(s)\n", len(removed))
	return nil
}
