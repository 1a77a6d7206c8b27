package script

import (
	"encoding/hex"
	"errors"
	"path"
	"sort"
	"strings"

	"github.com/google/uuid"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/ast"
	"github.com/yuin/gopher-lua/parse"
	"golang.org/x/crypto/blake2b"
)

// HostModule is the module every script can require without a reference.
const HostModule = "modscript"

// Compiler turns script source into executable types.
type Compiler interface {
	// Compile builds a behavior type. Failures are *CompilationError.
	Compile(src, logicalPath string, refs ReferenceSet) (CompiledType, error)
	// CompileLibrary builds a module body for a Reference.
	CompileLibrary(src, logicalPath string) (*lua.FunctionProto, error)
}

// LuaCompiler compiles Lua behaviors. It holds no state besides the fixed
// baseline module set and is safe for concurrent use.
type LuaCompiler struct {
	baseline map[string]bool
}

func NewLuaCompiler() *LuaCompiler {
	return &LuaCompiler{baseline: map[string]bool{
		HostModule:        true,
		lua.TabLibName:    true,
		lua.StringLibName: true,
		lua.MathLibName:   true,
	}}
}

func (c *LuaCompiler) Compile(src, logicalPath string, refs ReferenceSet) (CompiledType, error) {
	unit := unitName(logicalPath)
	chunk, proto, diags, parsed := compileChunk(src, logicalPath, unit)
	if parsed {
		diags = append(diags, c.unresolvedRequires(chunk, logicalPath, refs)...)
		if d, ok := checkBehaviorReturn(chunk, logicalPath); !ok {
			diags = append(diags, d)
		}
	}
	if len(diags) > 0 {
		sort.SliceStable(diags, func(i, j int) bool { return diags[i].Line < diags[j].Line })
		return nil, &CompilationError{Path: logicalPath, Diagnostics: diags}
	}
	sum := blake2b.Sum256([]byte(src))
	return &luaType{
		name:   unit,
		path:   logicalPath,
		digest: hex.EncodeToString(sum[:8]),
		proto:  proto,
		refs:   refs,
	}, nil
}

func (c *LuaCompiler) CompileLibrary(src, logicalPath string) (*lua.FunctionProto, error) {
	_, proto, diags, _ := compileChunk(src, logicalPath, unitName(logicalPath))
	if len(diags) > 0 {
		return nil, &CompilationError{Path: logicalPath, Diagnostics: diags}
	}
	return proto, nil
}

// unitName gives every compile its own name so similarly named scripts from
// different mods never collide.
func unitName(logicalPath string) string {
	base := path.Base(logicalPath)
	stem := strings.TrimSuffix(base, path.Ext(base))
	return stem + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// compileChunk parses and compiles src. parsed is false only on syntax errors.
func compileChunk(src, logicalPath, unit string) (chunk []ast.Stmt, proto *lua.FunctionProto, diags []Diagnostic, parsed bool) {
	chunk, err := parse.Parse(strings.NewReader(src), logicalPath)
	if err != nil {
		d := Diagnostic{Path: logicalPath, Message: err.Error()}
		var perr *parse.Error
		if errors.As(err, &perr) {
			d.Line, d.Column = perr.Pos.Line, perr.Pos.Column
			d.Message = perr.Message
			if perr.Token != "" {
				d.Message += " near '" + perr.Token + "'"
			}
			if d.Line < 0 {
				d.Line, d.Column = 0, 0
				d.Message += " at end of file"
			}
		}
		return nil, nil, []Diagnostic{d}, false
	}
	proto, err = lua.Compile(chunk, unit)
	if err != nil {
		d := Diagnostic{Path: logicalPath, Message: err.Error()}
		var cerr *lua.CompileError
		if errors.As(err, &cerr) {
			d.Line, d.Message = cerr.Line, cerr.Message
		}
		// Keep the AST: require and return checks still apply.
		return chunk, nil, []Diagnostic{d}, true
	}
	return chunk, proto, nil, true
}

func (c *LuaCompiler) unresolvedRequires(chunk []ast.Stmt, logicalPath string, refs ReferenceSet) []Diagnostic {
	var diags []Diagnostic
	seen := make(map[string]bool)
	walkStmts(chunk, func(e ast.Expr) {
		call, ok := e.(*ast.FuncCallExpr)
		if !ok || call.Receiver != nil || len(call.Args) == 0 {
			return
		}
		if id, ok := call.Func.(*ast.IdentExpr); !ok || id.Value != "require" {
			return
		}
		name, ok := call.Args[0].(*ast.StringExpr)
		if !ok || seen[name.Value] {
			return
		}
		seen[name.Value] = true
		if c.baseline[name.Value] || refs.Has(name.Value) {
			return
		}
		diags = append(diags, Diagnostic{
			Path:    logicalPath,
			Line:    call.Line(),
			Message: "module '" + name.Value + "' not found in references",
		})
	})
	return diags
}

func checkBehaviorReturn(chunk []ast.Stmt, logicalPath string) (Diagnostic, bool) {
	d := Diagnostic{Path: logicalPath, Message: "no script behavior: chunk must end with 'return <behavior table>'"}
	if len(chunk) == 0 {
		return d, false
	}
	last := chunk[len(chunk)-1]
	d.Line = last.Line()
	ret, ok := last.(*ast.ReturnStmt)
	if !ok || len(ret.Exprs) != 1 {
		return d, false
	}
	if _, constant := ret.Exprs[0].(ast.ConstExpr); constant {
		return d, false
	}
	return Diagnostic{}, true
}

func walkStmts(stmts []ast.Stmt, visit func(ast.Expr)) {
	for _, s := range stmts {
		walkStmt(s, visit)
	}
}

func walkExprs(exprs []ast.Expr, visit func(ast.Expr)) {
	for _, e := range exprs {
		walkExpr(e, visit)
	}
}

func walkStmt(s ast.Stmt, visit func(ast.Expr)) {
	switch st := s.(type) {
	case *ast.AssignStmt:
		walkExprs(st.Lhs, visit)
		walkExprs(st.Rhs, visit)
	case *ast.LocalAssignStmt:
		walkExprs(st.Exprs, visit)
	case *ast.FuncCallStmt:
		walkExpr(st.Expr, visit)
	case *ast.DoBlockStmt:
		walkStmts(st.Stmts, visit)
	case *ast.WhileStmt:
		walkExpr(st.Condition, visit)
		walkStmts(st.Stmts, visit)
	case *ast.RepeatStmt:
		walkStmts(st.Stmts, visit)
		walkExpr(st.Condition, visit)
	case *ast.IfStmt:
		walkExpr(st.Condition, visit)
		walkStmts(st.Then, visit)
		walkStmts(st.Else, visit)
	case *ast.NumberForStmt:
		walkExpr(st.Init, visit)
		walkExpr(st.Limit, visit)
		walkExpr(st.Step, visit)
		walkStmts(st.Stmts, visit)
	case *ast.GenericForStmt:
		walkExprs(st.Exprs, visit)
		walkStmts(st.Stmts, visit)
	case *ast.FuncDefStmt:
		walkExpr(st.Func, visit)
	case *ast.ReturnStmt:
		walkExprs(st.Exprs, visit)
	}
}

func walkExpr(e ast.Expr, visit func(ast.Expr)) {
	if e == nil {
		return
	}
	visit(e)
	switch ex := e.(type) {
	case *ast.AttrGetExpr:
		walkExpr(ex.Object, visit)
		walkExpr(ex.Key, visit)
	case *ast.TableExpr:
		for _, f := range ex.Fields {
			walkExpr(f.Key, visit)
			walkExpr(f.Value, visit)
		}
	case *ast.FuncCallExpr:
		walkExpr(ex.Func, visit)
		walkExpr(ex.Receiver, visit)
		walkExprs(ex.Args, visit)
	case *ast.LogicalOpExpr:
		walkExpr(ex.Lhs, visit)
		walkExpr(ex.Rhs, visit)
	case *ast.RelationalOpExpr:
		walkExpr(ex.Lhs, visit)
		walkExpr(ex.Rhs, visit)
	case *ast.StringConcatOpExpr:
		walkExpr(ex.Lhs, visit)
		walkExpr(ex.Rhs, visit)
	case *ast.ArithmeticOpExpr:
		walkExpr(ex.Lhs, visit)
		walkExpr(ex.Rhs, visit)
	case *ast.UnaryMinusOpExpr:
		walkExpr(ex.Expr, visit)
	case *ast.UnaryNotOpExpr:
		walkExpr(ex.Expr, visit)
	case *ast.UnaryLenOpExpr:
		walkExpr(ex.Expr, visit)
	case *ast.FunctionExpr:
		walkStmts(ex.Stmts, visit)
	}
}
