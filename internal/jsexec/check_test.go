package jsexec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck_ValidScript(t *testing.T) {
	src := `(() => {
		const el = document.querySelector('.modal');
		return { present: el !== null };
	})()`
	require.NoError(t, Check("modal_check", src))
}

func TestCheck_SyntaxError(t *testing.T) {
	err := Check("broken", `(() => { return { oops: ; })()`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestCheckAll(t *testing.T) {
	require.NoError(t, CheckAll(map[string]string{
		"a": `1 + 1`,
		"b": `(() => 2)()`,
	}))
	require.Error(t, CheckAll(map[string]string{
		"a": `1 + 1`,
		"b": `function {`,
	}))
}
