package sandbox

import (
	"go/scanner"
	"go/token"

	"github.com/cockroachdb/errors"
)

var forbiddenCalls = map[string]string{
	"open":  "file access is unavailable to scripts",
	"eval":  "dynamic evaluation is unavailable to scripts",
	"exec":  "process execution is unavailable to scripts",
	"input": "console input is unavailable to scripts",
}

var forbiddenPackages = map[string]string{
	"os":       "operating system access is unavailable to scripts",
	"ioutil":   "file access is unavailable to scripts",
	"io":       "raw streams are unavailable to scripts",
	"bufio":    "console input is unavailable to scripts",
	"filepath": "file access is unavailable to scripts",
	"syscall":  "system calls are unavailable to scripts",
	"unsafe":   "unsafe memory access is unavailable to scripts",
	"net":      "network access is unavailable to scripts",
	"http":     "network access is unavailable to scripts",
	"exec":     "process execution is unavailable to scripts",
	"reflect":  "reflection is unavailable to scripts",
	"runtime":  "runtime access is unavailable to scripts",
	"plugin":   "dynamic loading is unavailable to scripts",
}

// Guard scans a script for constructs the capability table never provides.
// The interpreter would reject most of them anyway; the guard turns them into
// a clear message before anything runs. It is a token check, so it can be
// fooled by a determined author. Names the script declares itself, such as
// a local called net, are not treated as packages.
func Guard(code string) error {
	tokens, err := scanTokens(code)
	if err != nil {
		return err
	}
	declared := declaredNames(tokens)

	prev := token.ILLEGAL
	var pending *scanned
	for i := range tokens {
		current := tokens[i]
		if pending != nil {
			if current.tok == token.PERIOD {
				if reason, ok := forbiddenPackages[pending.lit]; ok {
					return forbidden(pending.lit, pending.pos, reason)
				}
			}
			if current.tok == token.LPAREN {
				if reason, ok := forbiddenCalls[pending.lit]; ok {
					return forbidden(pending.lit+"()", pending.pos, reason)
				}
			}
			pending = nil
		}

		switch current.tok {
		case token.IMPORT:
			return forbidden("import", current.pos, "imports are not permitted; every package is already bound")
		case token.GO:
			return forbidden("go", current.pos, "goroutines are not permitted")
		case token.IDENT:
			if prev != token.PERIOD && !declared[current.lit] {
				pending = &tokens[i]
			}
		}
		prev = current.tok
	}
	return nil
}

type scanned struct {
	pos token.Position
	tok token.Token
	lit string
}

func scanTokens(code string) ([]scanned, error) {
	source := []byte(code)
	fset := token.NewFileSet()
	file := fset.AddFile("script.go", -1, len(source))

	var scanErrs scanner.ErrorList
	var s scanner.Scanner
	s.Init(file, source, func(pos token.Position, msg string) {
		scanErrs.Add(pos, msg)
	}, 0)

	var tokens []scanned
	for {
		pos, tok, lit := s.Scan()
		if tok == token.EOF {
			break
		}
		tokens = append(tokens, scanned{pos: fset.Position(pos), tok: tok, lit: lit})
	}
	if err := scanErrs.Err(); err != nil {
		return nil, errors.Wrap(err, "scan script")
	}
	return tokens, nil
}

// declaredNames collects identifiers introduced by ":=", var and const.
func declaredNames(tokens []scanned) map[string]bool {
	declared := map[string]bool{}
	for i, current := range tokens {
		switch current.tok {
		case token.DEFINE:
			for j := i - 1; j >= 0 && tokens[j].tok == token.IDENT; j -= 2 {
				declared[tokens[j].lit] = true
				if j == 0 || tokens[j-1].tok != token.COMMA {
					break
				}
			}
		case token.VAR, token.CONST:
			for j := i + 1; j < len(tokens) && tokens[j].tok == token.IDENT; j += 2 {
				declared[tokens[j].lit] = true
				if j+1 >= len(tokens) || tokens[j+1].tok != token.COMMA {
					break
				}
			}
		}
	}
	return declared
}

func forbidden(operation string, pos token.Position, reason string) error {
	return errors.WithStack(&ForbiddenOperation{
		Operation: operation,
		Line:      pos.Line,
		Column:    pos.Column,
		Reason:    reason,
	})
}
