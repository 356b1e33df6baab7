package nn

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructureRoundTrip(t *testing.T) {
	conf := testConf()
	conf.Hidden[1].Activation = Square
	n, err := New(conf)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, n.SaveStructure(&buf))
	// four layer specs of 9 bytes plus the hidden count
	assert.Equal(t, 4*9+4, buf.Len())

	loaded, err := LoadStructure(&buf)
	require.NoError(t, err)
	if diff := cmp.Diff(conf, loaded.Config()); diff != "" {
		t.Errorf("structure differs: %s", diff)
	}
}

func TestStructureErrors(t *testing.T) {
	n, err := New(testConf())
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, n.SaveStructure(&buf))
	good := buf.Bytes()

	_, err = LoadStructure(bytes.NewReader(good[:len(good)-2]))
	assert.Error(t, err, "truncated")

	bad := append([]byte(nil), good...)
	bad[8] = 99 // activation id of the input layer
	_, err = LoadStructure(bytes.NewReader(bad))
	assert.Error(t, err, "unknown activation")

	bad = append([]byte(nil), good...)
	copy(bad[9:13], []byte{0xff, 0xff, 0xff, 0xff})
	_, err = LoadStructure(bytes.NewReader(bad))
	assert.Error(t, err, "negative hidden count")

	bad = append([]byte(nil), good...)
	copy(bad[0:4], []byte{0x7f, 0xff, 0xff, 0xff})
	_, err = LoadStructure(bytes.NewReader(bad))
	assert.Error(t, err, "oversized input layer")

	bad = append([]byte(nil), good[:13]...)
	copy(bad[9:13], []byte{0x7f, 0xff, 0xff, 0xff})
	_, err = LoadStructure(bytes.NewReader(bad))
	assert.Error(t, err, "hidden count beyond the stream")
}

func TestWeightsRoundTrip(t *testing.T) {
	n := randomNetwork(t, testConf(), 42)
	var buf bytes.Buffer
	require.NoError(t, n.Save(&buf))
	assert.Equal(t, (n.TotalSynapses()+n.TotalNeurons()-n.Inputs())*4, buf.Len())

	loaded := n.Clone(false)
	require.NoError(t, loaded.Load(bytes.NewReader(buf.Bytes())))
	assert.Equal(t, n.biases, loaded.biases)
	assert.Equal(t, n.weights, loaded.weights)
	assert.Equal(t, n.recurrent, loaded.recurrent)

	assert.Error(t, loaded.Load(bytes.NewReader(buf.Bytes()[:10])))
}

func TestWeightsStreamOrder(t *testing.T) {
	n, err := New(Config{
		Input:  Layer{Neurons: 1},
		Hidden: []Layer{{Neurons: 1, Recurring: true}},
		Output: Layer{Neurons: 1},
	})
	require.NoError(t, err)
	n.Biases(1)[0] = 1
	n.Biases(0)[0] = 2
	n.Weights(1)[0] = 3
	n.Weights(0)[0] = 4
	n.RecurrentWeights(0)[0] = 5

	var buf bytes.Buffer
	require.NoError(t, n.Save(&buf))
	want := []byte{
		0x3f, 0x80, 0, 0, // 1
		0x40, 0, 0, 0, // 2
		0x40, 0x40, 0, 0, // 3
		0x40, 0x80, 0, 0, // 4
		0x40, 0xa0, 0, 0, // 5
	}
	assert.Equal(t, want, buf.Bytes())
}
