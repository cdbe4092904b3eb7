package main

import (
	"context"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/ppcrec/compiler"
	"github.com/slowlang/ppcrec/compiler/config"
	"github.com/slowlang/ppcrec/compiler/format"
	"github.com/slowlang/ppcrec/compiler/iml"
	"github.com/slowlang/ppcrec/compiler/parse"
	"github.com/slowlang/ppcrec/compiler/sample"
)

func main() {
	listCmd := &cli.Command{
		Name:        "list",
		Description: "list built-in sample functions",
		Action:      listAct,
	}

	compileCmd := &cli.Command{
		Name:        "compile",
		Description: "compile sample functions or .iml listings and print the host code",
		Action:      compileAct,
		Args:        cli.Args{},
		Flags: []*cli.Flag{
			cli.NewFlag("config", "", "yaml options file"),
			cli.NewFlag("movbe", false, "host has movbe"),
			cli.NewFlag("bmi2", false, "host has bmi2 shifts"),
			cli.NewFlag("lzcnt", false, "host has lzcnt"),
			cli.NewFlag("iml", false, "print IML after register allocation"),
			cli.NewFlag("ranges", false, "log live ranges"),
		},
	}

	app := &cli.Command{
		Name:        "ppcrec",
		Description: "ppcrec compiles PowerPC IML functions to x86-64",
		Before:      before,
		Flags: []*cli.Flag{
			cli.NewFlag("verbosity,v", "", "logger verbosity topics"),
			cli.HelpFlag,
		},
		Commands: []*cli.Command{
			listCmd,
			compileCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func before(c *cli.Command) error {
	tlog.SetVerbosity(c.String("verbosity"))

	return nil
}

func listAct(c *cli.Command) error {
	for _, f := range sample.All {
		fmt.Printf("%-8s %s\n", f.Name, f.Descr)
	}

	return nil
}

func options(c *cli.Command) (o *config.Options, err error) {
	if p := c.String("config"); p != "" {
		o, err = config.Load(p)
		if err != nil {
			return nil, errors.Wrap(err, "load config")
		}
	} else {
		o = config.Default()
	}

	o.Features.MOVBE = o.Features.MOVBE || c.Bool("movbe")
	o.Features.BMI2 = o.Features.BMI2 || c.Bool("bmi2")
	o.Features.LZCNT = o.Features.LZCNT || c.Bool("lzcnt")

	return o, nil
}

func compileAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	o, err := options(c)
	if err != nil {
		return err
	}

	if c.Bool("ranges") {
		tlog.SetVerbosity(c.String("verbosity") + ",dump_ranges")
	}

	if len(c.Args) == 0 {
		return errors.New("no functions to compile, see list")
	}

	for _, a := range c.Args {
		fc, descr, err := function(ctx, a)
		if err != nil {
			return err
		}

		n, err := compiler.Compile(ctx, fc, o)
		if err != nil {
			return errors.Wrap(err, "compile %v", a)
		}

		fmt.Printf("; %s: %s\n", a, descr)

		if c.Bool("iml") {
			os.Stdout.Write(format.DumpContext(nil, fc, format.Opts{}))
		}

		for _, addr := range slices.Sorted(maps.Keys(n.Entries)) {
			fmt.Printf("; entry %#08x at 0x%04x\n", addr, n.Entries[addr])
		}

		os.Stdout.Write(format.Disassemble(nil, n.Code))
		fmt.Printf("\n")
	}

	return nil
}

// function builds a sample by name or parses a listing file.
func function(ctx context.Context, a string) (*iml.Context, string, error) {
	if strings.HasSuffix(a, ".iml") {
		fc, err := parse.ParseFile(ctx, a)
		if err != nil {
			return nil, "", errors.Wrap(err, "parse")
		}

		return fc, "listing", nil
	}

	f, ok := sample.Find(a)
	if !ok {
		return nil, "", errors.New("unknown function %q", a)
	}

	return f.Build(), f.Descr, nil
}
