package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ptacemic/ai-dial-general-purpose-agent/core"
)

func TestInMemoryStore_GetCreatesLazily(t *testing.T) {
	s := NewInMemoryStore()
	c := s.Get("conv-1")
	assert.Equal(t, "conv-1", c.ID)
	assert.Empty(t, c.Messages)
	assert.Equal(t, []string{"conv-1"}, s.IDs())
}

func TestInMemoryStore_AppendAndClone(t *testing.T) {
	s := NewInMemoryStore()
	s.Append("c", core.NewUserMessage("hi"))
	reply := core.NewAssistantMessage("hello")
	reply.State = &core.State{}
	s.Append("c", reply)

	c := s.Get("c")
	require.Len(t, c.Messages, 2)
	assert.NotNil(t, c.Messages[1].State)

	c.Messages = append(c.Messages, core.NewUserMessage("mutated"))
	assert.Len(t, s.Get("c").Messages, 2)
}

func TestInMemoryStore_CreateOverwrites(t *testing.T) {
	s := NewInMemoryStore()
	s.Append("c", core.NewUserMessage("hi"))
	assert.Empty(t, s.Create("c").Messages)
	assert.Empty(t, s.Get("c").Messages)
}

func TestInMemoryStore_Delete(t *testing.T) {
	s := NewInMemoryStore()
	s.Append("c", core.NewUserMessage("hi"))
	assert.True(t, s.Delete("c"))
	assert.False(t, s.Delete("c"))
	assert.Empty(t, s.IDs())
}

func TestInMemoryStore_ConcurrentAppend(t *testing.T) {
	s := NewInMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Append("c", core.NewUserMessage("x"))
		}()
	}
	wg.Wait()
	assert.Len(t, s.Get("c").Messages, 50)
}
