package compiler

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/ppcrec/compiler/back"
	"github.com/slowlang/ppcrec/compiler/config"
	"github.com/slowlang/ppcrec/compiler/format"
	"github.com/slowlang/ppcrec/compiler/iml"
	"github.com/slowlang/ppcrec/compiler/opt"
	"github.com/slowlang/ppcrec/compiler/ra"
)

// Compile turns one function of IML into host code.
// c is rewritten in place and can't be compiled again.
func Compile(ctx context.Context, c *iml.Context, o *config.Options) (n *back.Native, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "compile", "segments", len(c.Segments), "regs", c.NumRegs())
	defer tr.Finish("err", &err)

	if o == nil {
		o = config.Default()
	}

	if c.Allocated {
		return nil, errors.New("already compiled")
	}

	err = c.Validate()
	if err != nil {
		return nil, errors.Wrap(err, "validate")
	}

	dump(tr, "dump_iml_before", c)

	err = opt.Run(ctx, c, o)
	if err != nil {
		return nil, errors.Wrap(err, "optimize")
	}

	dump(tr, "dump_iml_after_opt", c)

	_, err = ra.Allocate(ctx, c, o)
	if err != nil {
		return nil, errors.Wrap(err, "allocate registers")
	}

	dump(tr, "dump_iml_after_ra", c)

	n, err = back.Generate(ctx, c, o)
	if err != nil {
		return nil, errors.Wrap(err, "generate")
	}

	if tr.If("dump_code") {
		tr.Printw("code", "disasm", format.Disassemble(nil, n.Code))
	}

	tr.Printw("compiled", "native", n)

	return n, nil
}

func dump(tr tlog.Span, topic string, c *iml.Context) {
	if !tr.If(topic) {
		return
	}

	tr.Printw(topic, "dump", format.DumpContext(nil, c, format.Opts{}))
}
