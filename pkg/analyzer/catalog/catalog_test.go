package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefault(t *testing.T) {
	c := Default()
	assert.True(t, c.HotCallbacks["OnTick"])
	assert.True(t, c.CacheableGlobals["ipairs"])
	assert.True(t, c.IsCacheableModuleFunc("math", "floor"))
	assert.False(t, c.IsCacheableModuleFunc("math", "nope"))
	assert.False(t, c.IsCacheableModuleFunc("os", "time"))
	assert.True(t, c.DirectReplacements["table.insert"])

	reason, ok := c.NilReason("GetClosestVehicle")
	assert.True(t, ok)
	assert.Contains(t, reason, "no vehicle nearby")

	assert.Equal(t, "ped", c.ExpensiveCalls["PlayerPedId"].CacheName)
	assert.Empty(t, c.ExpensiveCalls["GetDistanceBetweenCoords"].CacheName)
	assert.Equal(t, "YELLOW", c.ExpensiveCalls["GetDistanceBetweenCoords"].Severity)
}

func TestExtendDoesNotMutate(t *testing.T) {
	base := Default()
	ext := base.Extend(Extension{
		HotCallbacks:     []string{"myTick"},
		DebugFunctions:   []string{"Logger"},
		NilReturning:     map[string]string{"GetMyThing": ""},
		CacheableMethods: []string{"getId"},
	})

	assert.True(t, ext.HotCallbacks["myTick"])
	assert.True(t, ext.DebugFunctions["Logger"])
	assert.Equal(t, "may return nil", ext.NilReturning["GetMyThing"])
	assert.True(t, ext.CacheableMethods["getId"])

	assert.False(t, base.HotCallbacks["myTick"])
	assert.False(t, base.DebugFunctions["Logger"])
	_, ok := base.NilReturning["GetMyThing"]
	assert.False(t, ok)
}

func TestExpensiveNamesSorted(t *testing.T) {
	names := Default().ExpensiveNames()
	assert.IsIncreasing(t, names)
	assert.Contains(t, names, "GetHashKey")
}
