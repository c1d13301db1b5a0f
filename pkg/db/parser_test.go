package db

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandParserSession(t *testing.T) {
	e := openEngine(t, t.TempDir(), 8)
	defer e.Close()

	var out bytes.Buffer
	p := NewCommandParser(e.NewSession(), &out)
	run := func(line string) string {
		t.Helper()
		out.Reset()
		require.NoError(t, p.ParseAndExecute(line))
		return out.String()
	}

	assert.Equal(t, "Index created.\n", run("create users 8"))
	assert.Equal(t, "Index changed to 'users'.\n", run("USE users;"))
	assert.Equal(t, "OK, 1 row affected.\n", run("insert 1 10"))
	assert.Equal(t, "OK, 1 row affected.\n", run("insert 1 11"))
	assert.Equal(t, "Duplicate pair, 0 rows affected.\n", run("insert 1 10"))
	assert.Contains(t, run("get 1"), "(2 rows)")
	assert.Equal(t, "Empty set.\n", run("get 2"))
	assert.Equal(t, "OK, 1 row affected.\n", run("remove 1 10"))
	assert.Equal(t, "Not found, 0 rows affected.\n", run("remove 1 10"))
	assert.Equal(t, "1 entries in 8 buckets\n", run("size"))
	assert.Equal(t, "Flushed.\n", run("flush"))
	assert.Contains(t, run("stats"), "hits=")
	assert.Equal(t, "Indexes:\n- users\n", run("list"))

	run("insert 5 5")
	assert.Equal(t, "All 1 keys OK.\n", run("verify 5 6"))
	assert.Equal(t, "1 keys missing, first 1\n", run("verify 1 2"))
	assert.Contains(t, run("help"), "verify <from> <to>")
}

func TestCommandParserErrors(t *testing.T) {
	e := openEngine(t, t.TempDir(), 4)
	defer e.Close()
	p := NewCommandParser(e.NewSession(), &bytes.Buffer{})

	assert.ErrorIs(t, p.ParseAndExecute("insert 1 1"), ErrNoIndexSelected)
	assert.ErrorIs(t, p.ParseAndExecute("verify 1 2"), ErrNoIndexSelected)
	assert.Error(t, p.ParseAndExecute("select * from users"))
	assert.Error(t, p.ParseAndExecute("insert 99999999999999999999 1"))

	require.NoError(t, p.ParseAndExecute("create t"))
	require.NoError(t, p.ParseAndExecute("use t"))
	assert.Error(t, p.ParseAndExecute("drop t"))
}
