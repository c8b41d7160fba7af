// Package driver runs the lowering core (src/lower) over a compile set of src/ast.Objects,
// optionally in parallel, the way the teacher's main.run fans ir.Optimise/ir.ValidateTree/
// ir/llvm.GenLLVM out across worker threads gated on Options.Threads.
package driver

import (
	"sync"

	"vslc/src/ast"
	"vslc/src/diag"
	"vslc/src/ir"
	"vslc/src/lower"
	"vslc/src/util"
)

// Result is one Object's lowered ir.Module, paired back to the Object it came from.
type Result struct {
	Object *ast.Object
	Module *ir.Module
}

// Run lowers every Object in objects into its own ir.Module. With opt.Threads <= 1 it runs
// sequentially in the order of objects; otherwise each Object is lowered on its own goroutine, none
// of which share a Module, Resolver, or Bridge stack, satisfying the "no shared mutable state" rule
// each goroutine touching only its own Object/Module/pool.
func Run(objects []*ast.Object, reporter diag.Reporter, opt util.Options) ([]Result, error) {
	if opt.Threads > 1 {
		return runParallel(objects, reporter, opt)
	}
	return runSequential(objects, reporter, opt)
}

func runSequential(objects []*ast.Object, reporter diag.Reporter, opt util.Options) ([]Result, error) {
	out := make([]Result, 0, len(objects))
	for _, obj := range objects {
		mod, err := lowerOne(obj, objects, reporter, opt)
		if err != nil {
			return out, err
		}
		out = append(out, Result{Object: obj, Module: mod})
	}
	return out, nil
}

func runParallel(objects []*ast.Object, reporter diag.Reporter, opt util.Options) ([]Result, error) {
	pe := util.NewPerror(len(objects))
	defer pe.Stop()

	results := make([]Result, len(objects))
	wg := sync.WaitGroup{}
	for i, obj := range objects {
		wg.Add(1)
		go func(i int, obj *ast.Object) {
			defer wg.Done()
			mod, err := lowerOne(obj, objects, reporter, opt)
			if err != nil {
				pe.Append(err)
				return
			}
			results[i] = Result{Object: obj, Module: mod}
		}(i, obj)
	}
	wg.Wait()

	if pe.Len() > 0 {
		for err := range pe.Errors() {
			return results, err
		}
	}
	return results, nil
}

// lowerOne builds a fresh Module/Context for obj and lowers every function and method it declares.
func lowerOne(obj *ast.Object, objects []*ast.Object, reporter diag.Reporter, opt util.Options) (*ir.Module, error) {
	mod := ir.NewModule(obj.Namespace)
	c := lower.NewContext(mod, objects, obj, reporter, opt)
	if err := lower.LowerObject(c); err != nil {
		if rec, ok := diag.FromError(err); ok {
			reporter.Report(rec)
		}
		return mod, err
	}
	if err := verifyModule(mod); err != nil {
		return mod, err
	}
	return mod, nil
}

// verifyModule runs ir.VerifyFunction over every function the Object actually defined (skipping
// foreign/declaration-only headers, which never get blocks).
func verifyModule(mod *ir.Module) error {
	for _, f := range mod.Functions() {
		if len(f.Blocks()) == 0 {
			continue
		}
		if err := ir.VerifyFunction(f); err != nil {
			return err
		}
	}
	return nil
}
