package main

import (
	"fmt"
	"os"
	"sync"
	"vslc/src/diag"
	"vslc/src/driver"
	"vslc/src/frontend"
	ll2 "vslc/src/ir/llvm"
	"vslc/src/util"
)

// run reads source code and drives it through the frontend boundary, the lowering core, and
// (optionally) the LLVM backend collaborator. Behaviour is governed by the parsed util.Options.
func run(opt util.Options) error {
	src, err := util.ReadSource(opt)
	if err != nil {
		return fmt.Errorf("could not read source code: %s", err)
	}

	objects, err := frontend.Parse(src)
	if err != nil {
		return fmt.Errorf("parse error: %s", err)
	}

	reporter := diag.Reporter(&diag.StderrReporter{})
	results, err := driver.Run(objects, reporter, opt)
	if err != nil {
		return fmt.Errorf("lowering error: %s", err)
	}

	for _, res := range results {
		if opt.LLVM {
			if _, err := ll2.GenLLVM(opt, res.Module); err != nil {
				return fmt.Errorf("error reported by LLVM: %s", err)
			}
			continue
		}
		w := util.NewWriter()
		w.WriteString(res.Module.String())
		w.Close()
	}
	return nil
}

func main() {
	opt, err := util.ParseArgs()
	if err != nil {
		fmt.Printf("Command line argument error: %s\n", err)
		os.Exit(1)
	}

	wg := sync.WaitGroup{}
	if len(opt.Out) > 0 {
		f, err := os.OpenFile(opt.Out, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		defer func(f *os.File) {
			if err := f.Close(); err != nil {
				fmt.Println(err)
			}
		}(f)
		util.ListenWrite(opt, f, &wg)
	} else {
		util.ListenWrite(opt, nil, &wg)
	}

	if err := run(opt); err != nil {
		fmt.Printf("Error: %s\n", err)
	}

	util.Close()
	wg.Wait()
}
