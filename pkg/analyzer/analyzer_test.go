package analyzer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/luafix/pkg/analyzer/catalog"
	"github.com/panbanda/luafix/pkg/models"
	"github.com/panbanda/luafix/pkg/parser"
	"github.com/panbanda/luafix/pkg/source"
)

func analyze(t *testing.T, src string, opts ...Option) []models.Finding {
	t.Helper()
	res, err := New(opts...).AnalyzeSource(context.Background(), "test.lua", []byte(src))
	require.NoError(t, err)
	return res.Findings
}

func byPattern(findings []models.Finding, pattern string) []models.Finding {
	var out []models.Finding
	for _, f := range findings {
		if f.Pattern == pattern {
			out = append(out, f)
		}
	}
	return out
}

// visitSource parses src and runs the fact-collecting walk only.
func visitSource(t *testing.T, src string, opts ...Option) *fileContext {
	t.Helper()
	p := parser.New()
	defer p.Close()
	parsed, err := p.Parse(context.Background(), []byte(src), "test.lua")
	require.NoError(t, err)
	defer parsed.Close()

	lines := source.NewLines([]byte(src))
	fc := newFileContext(New(opts...), "test.lua", []byte(src), lines)
	fc.visit(parsed.Chunk)
	return fc
}

func TestNewDefaults(t *testing.T) {
	a := New()
	assert.Equal(t, DefaultCacheThreshold, a.CacheThreshold())
	assert.False(t, a.Experimental())
	assert.NotNil(t, a.Catalog())

	a = New(WithCacheThreshold(6), WithExperimental(true), WithCacheThreshold(0))
	assert.Equal(t, 6, a.CacheThreshold(), "non-positive thresholds are ignored")
	assert.True(t, a.Experimental())
}

func TestParseFailure(t *testing.T) {
	_, err := New().AnalyzeSource(context.Background(), "bad.lua", []byte("local = = ("))
	require.Error(t, err)
	assert.ErrorIs(t, err, parser.ErrParse)
}

func TestAnalyzeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client.lua")
	require.NoError(t, os.WriteFile(path, []byte("print(\"hi\")\n"), 0o644))

	res, err := New().Analyze(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, res.Findings, 1)
	assert.Equal(t, path, res.Findings[0].File)

	_, err = New(WithMaxFileSize(4)).Analyze(context.Background(), path)
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = New().Analyze(context.Background(), filepath.Join(dir, "missing.lua"))
	assert.Error(t, err)
}

func TestTableInsert(t *testing.T) {
	findings := byPattern(analyze(t, "local t = {}\ntable.insert(t, 1)\nlocal n = table.insert(t, 1, 2)\n"), models.PatternTableInsert)
	require.Len(t, findings, 1)

	f := findings[0]
	assert.Equal(t, 2, f.Line)
	assert.Equal(t, models.SeverityGreen, f.Severity)
	assert.Equal(t, "table.insert(t, v) -> t[#t+1] = v", f.Message)
	assert.Equal(t, "table.insert(t, 1)", f.DetailString("full_match"))
	require.NotNil(t, f.Refs)
	refs := f.Refs.Calls["table.insert"]
	require.Len(t, refs, 1)
	assert.True(t, refs[0].Statement)
}

func TestDeprecatedFunctions(t *testing.T) {
	findings := analyze(t, "local n = table.getn(items)\nlocal l = string.len(name) + 1\n")

	getn := byPattern(findings, models.PatternTableGetn)
	require.Len(t, getn, 1)
	assert.Equal(t, "table.getn(items) -> #items", getn[0].Message)

	strlen := byPattern(findings, models.PatternStringLen)
	require.Len(t, strlen, 1)
	assert.Equal(t, "string.len(name) -> #name", strlen[0].Message)
	assert.Equal(t, "+", strlen[0].Refs.Calls["string.len"][0].Operator)
}

func TestMathPow(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		message string
	}{
		{"square", "local a = math.pow(x, 2)\n", "math.pow(x, 2) -> x*x"},
		{"cube", "local a = math.pow(x, 3)\n", "math.pow(x, 3) -> x*x*x"},
		{"sqrt", "local a = math.pow(x + 1, 0.5)\n", "math.pow(x + 1, 0.5) -> math.sqrt(x + 1)"},
		{"complex base", "local a = math.pow(x + 1, 2)\n", ""},
		{"large exponent", "local a = math.pow(x, 5)\n", ""},
		{"variable exponent", "local a = math.pow(x, n)\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findings := byPattern(analyze(t, tt.src), models.PatternMathPow)
			if tt.message == "" {
				assert.Empty(t, findings)
				return
			}
			require.Len(t, findings, 1)
			assert.Equal(t, tt.message, findings[0].Message)
		})
	}
}

func TestUncachedGlobals(t *testing.T) {
	src := `function update(list)
  for i = 1, 10 do
    local a = math.floor(i)
    local b = math.floor(i)
    local c = math.floor(i)
    local d = math.floor(i)
  end
end
`
	findings := byPattern(analyze(t, src), models.PatternUncachedGlobals)
	require.Len(t, findings, 1)
	f := findings[0]
	assert.Equal(t, 1, f.Line)
	assert.Equal(t, "Cache 1 globals in update", f.Message)
	assert.Equal(t, "L3: math.floor\nL4: math.floor", f.SourceLine)
	require.NotNil(t, f.Refs.Scope)
	assert.Equal(t, []string{"list"}, f.Refs.Scope.Params)
	assert.Len(t, f.Refs.Calls["math.floor"], 4)
}

func TestUncachedGlobalsSkipsCachedAndFileScope(t *testing.T) {
	cached := `function update()
  local floor = math.floor
  local a = math.floor(1)
  local b = math.floor(2)
  local c = math.floor(3)
  local d = math.floor(4)
end
`
	assert.Empty(t, byPattern(analyze(t, cached), models.PatternUncachedGlobals))

	fileScope := "local a = math.floor(1)\nlocal b = math.floor(2)\nlocal c = math.floor(3)\nlocal d = math.floor(4)\n"
	assert.Empty(t, byPattern(analyze(t, fileScope), models.PatternUncachedGlobals))
}

func TestHotCallbackThreshold(t *testing.T) {
	body := "  for k, v in pairs(a) do end\n  for k, v in pairs(b) do end\n  for k, v in pairs(c) do end\n"

	hot := byPattern(analyze(t, "function OnTick()\n"+body+"end\n"), models.PatternUncachedGlobals)
	require.Len(t, hot, 1)
	assert.True(t, hot[0].DetailBool("is_hot"))

	cold := byPattern(analyze(t, "function refresh()\n"+body+"end\n"), models.PatternUncachedGlobals)
	assert.Empty(t, cold)
}

func TestRegisteredHandlerScope(t *testing.T) {
	src := `AddEventHandler("onResourceStart", function(resource)
  for k, v in pairs(a) do end
  for k, v in pairs(b) do end
  for k, v in pairs(c) do end
end)
`
	findings := byPattern(analyze(t, src), models.PatternUncachedGlobals)
	require.Len(t, findings, 1)
	assert.Equal(t, "Cache 1 globals in onResourceStart", findings[0].Message)
}

const branchSource = `function f()
  if a then
    GetEntityCoords(p)
    GetEntityCoords(p)
  elseif b then
    GetEntityCoords(p)
    GetEntityCoords(p)
    GetEntityCoords(p)
  else
    GetEntityCoords(p)
  end
  GetEntityCoords(p)
end
`

func TestBranchAwareCounting(t *testing.T) {
	count := func(experimental bool) int {
		fc := visitSource(t, branchSource, WithExperimental(experimental))
		var calls []callFact
		for _, cf := range fc.calls {
			if cf.name == "GetEntityCoords" {
				calls = append(calls, cf)
			}
		}
		require.Len(t, calls, 7)
		return fc.countCalls(calls)
	}
	assert.Equal(t, 4, count(true))
	assert.Equal(t, 7, count(false))

	naive := byPattern(analyze(t, branchSource, WithCacheThreshold(5)), models.RepeatedPattern("GetEntityCoords"))
	require.Len(t, naive, 1)
	assert.Equal(t, "GetEntityCoords called 7x in f", naive[0].Message)

	aware := byPattern(analyze(t, branchSource, WithCacheThreshold(5), WithExperimental(true)), models.RepeatedPattern("GetEntityCoords"))
	assert.Empty(t, aware)
}

func TestRepeatedCalls(t *testing.T) {
	src := `function tick()
  local a = PlayerPedId()
  local b = PlayerPedId()
  local c = PlayerPedId()
  local d = PlayerPedId()
  local x = GetDistanceBetweenCoords(1, 2, 3, 4, 5, 6, true)
end
`
	findings := analyze(t, src)
	repeated := byPattern(findings, models.RepeatedPattern("PlayerPedId"))
	require.Len(t, repeated, 1)
	f := repeated[0]
	assert.Equal(t, models.SeverityGreen, f.Severity)
	assert.Equal(t, 2, f.Line)
	assert.Equal(t, "ped", f.DetailString("cache_name"))
	assert.Equal(t, "local ped = PlayerPedId()", f.SourceLine)
	assert.Equal(t, []int{2, 3, 4, 5}, f.Detail("lines"))

	distance := byPattern(findings, models.PatternDistanceNative)
	require.Len(t, distance, 1)
	assert.Equal(t, models.SeverityYellow, distance[0].Severity)
}

func TestConcatInLoop(t *testing.T) {
	src := `local function build()
  local s = ""
  for i = 1, 3 do
    s = s .. tostring(i)
  end
  return s
end
`
	findings := byPattern(analyze(t, src), models.PatternConcatInLoop)
	require.Len(t, findings, 1)
	f := findings[0]
	assert.Equal(t, models.SeverityYellow, f.Severity)
	assert.Equal(t, 4, f.Line)
	assert.Equal(t, "String concat in loop: s = s .. x", f.Message)
	assert.True(t, f.DetailBool("is_safe"))
	assert.Equal(t, 2, f.DetailInt("init_line"))
	assert.Equal(t, 3, f.DetailInt("loop_start"))
	assert.Equal(t, 5, f.DetailInt("loop_end"))
}

func TestConcatInLoopWithoutInit(t *testing.T) {
	src := `local function build(s)
  for i = 1, 3 do
    s = s .. i
  end
  return s
end
`
	findings := byPattern(analyze(t, src), models.PatternConcatInLoop)
	require.Len(t, findings, 1)
	assert.False(t, findings[0].DetailBool("is_safe"))
	assert.Nil(t, findings[0].Detail("init_line"))
}

func TestDebugStatements(t *testing.T) {
	findings := byPattern(analyze(t, "print(\"a\")\nlocal l = math.log(2)\nDebugLog(\"b\")\n"), models.PatternDebugStatement)
	require.Len(t, findings, 2)
	assert.Equal(t, "Debug call: print()", findings[0].Message)
	assert.Equal(t, models.SeverityDebug, findings[0].Severity)
	assert.Equal(t, 3, findings[1].Line)
}

func TestGlobalWrites(t *testing.T) {
	src := "counter = 1\nMAX_SPEED = 2\n_internal = 3\nlocal y\ny = 4\n"
	findings := byPattern(analyze(t, src), models.PatternGlobalWrite)
	require.Len(t, findings, 1)
	assert.Equal(t, "Global write: counter", findings[0].Message)
	assert.Equal(t, models.SeverityRed, findings[0].Severity)
}

func TestNilAccess(t *testing.T) {
	t.Run("next line is safe", func(t *testing.T) {
		src := `function f()
  local veh = GetClosestVehicle(x, y, z, 5.0, 0, 70)
  veh:foo()
end
`
		findings := byPattern(analyze(t, src), models.PatternNilAccess)
		require.Len(t, findings, 1)
		f := findings[0]
		assert.Equal(t, 3, f.Line)
		assert.True(t, f.DetailBool("is_safe_to_fix"))
		assert.Equal(t, "GetClosestVehicle", f.DetailString("source_func"))
		assert.Equal(t, "method", f.DetailString("access_type"))
		assert.Contains(t, f.Message, "(auto-fixable)")
	})

	t.Run("guarded", func(t *testing.T) {
		src := `function f()
  local veh = GetClosestVehicle(x, y, z, 5.0, 0, 70)
  if veh then
    veh:foo()
  end
end
`
		assert.Empty(t, byPattern(analyze(t, src), models.PatternNilAccess))
	})

	t.Run("later line is not safe", func(t *testing.T) {
		src := `function f()
  local veh = GetClosestVehicle(x, y, z, 5.0, 0, 70)
  local speed = 1
  veh:foo()
end
`
		findings := byPattern(analyze(t, src), models.PatternNilAccess)
		require.Len(t, findings, 1)
		assert.False(t, findings[0].DetailBool("is_safe_to_fix"))
		assert.NotContains(t, findings[0].Message, "auto-fixable")
	})

	t.Run("reassignment clears", func(t *testing.T) {
		src := `function f()
  local veh = GetClosestVehicle(x, y, z, 5.0, 0, 70)
  veh = CreateVehicle(model)
  veh:foo()
end
`
		assert.Empty(t, byPattern(analyze(t, src), models.PatternNilAccess))
	})

	t.Run("declaration line is not safe", func(t *testing.T) {
		src := `function f()
  local veh = GetClosestVehicle(x, y, z, 5.0, 0, 70)
  local model = veh.model
end
`
		findings := byPattern(analyze(t, src), models.PatternNilAccess)
		require.Len(t, findings, 1)
		assert.Equal(t, "index", findings[0].DetailString("access_type"))
		assert.False(t, findings[0].DetailBool("is_safe_to_fix"))
	})
}

func TestCustomCatalog(t *testing.T) {
	cat := catalog.Default().Extend(catalog.Extension{DebugFunctions: []string{"Trace"}})
	findings := byPattern(analyze(t, "Trace(\"x\")\n", WithCatalog(cat)), models.PatternDebugStatement)
	assert.Len(t, findings, 1)
}

func TestDeadCodeIncluded(t *testing.T) {
	src := `while true do
  break
  print("never")
end
`
	res, err := New().AnalyzeSource(context.Background(), "test.lua", []byte(src))
	require.NoError(t, err)
	assert.Len(t, byPattern(res.Findings, models.PatternDeadAfterBreak), 1)
	assert.Equal(t, uint64(1), res.DeadLines)
}

func TestIsConstantName(t *testing.T) {
	assert.True(t, isConstantName("MAX_2"))
	assert.False(t, isConstantName("Max"))
	assert.False(t, isConstantName("_"))
}

func TestCallName(t *testing.T) {
	fc := visitSource(t, "a()\nm.f()\na.b.c()\nobj:m()\n")
	var names []string
	for _, cf := range fc.calls {
		names = append(names, cf.name)
	}
	assert.Equal(t, []string{"a", "m.f", "obj:m"}, names)
}
