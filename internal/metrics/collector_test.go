package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/rpgng/internal/config"
	"github.com/annel0/rpgng/internal/entity"
	"github.com/annel0/rpgng/internal/world"
)

func TestWorldCollector(t *testing.T) {
	cfg := config.Default()
	cfg.Registry.InitialCapacity = 2
	w, err := world.New(cfg)
	require.NoError(t, err)

	require.NoError(t, w.Do(func(reg *entity.Registry) error {
		for _, name := range []string{"a", "b", "c"} {
			id, err := reg.Create(name)
			require.NoError(t, err)
			_, err = w.Transforms.Create(id)
			require.NoError(t, err)
		}
		return nil
	}))

	reg := prometheus.NewPedanticRegistry()
	c := NewWorldCollector(w)
	require.NoError(t, c.Register(reg))
	assert.Error(t, c.Register(reg), "повторная регистрация отклоняется")

	mfs, err := reg.Gather()
	require.NoError(t, err)
	byName := map[string]float64{}
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, lp := range m.GetLabel() {
				if lp.GetName() != "world" {
					key += "|" + lp.GetValue()
				}
			}
			switch {
			case m.GetGauge() != nil:
				byName[key] = m.GetGauge().GetValue()
			case m.GetCounter() != nil:
				byName[key] = m.GetCounter().GetValue()
			}
		}
	}

	assert.Equal(t, 3.0, byName["rpgng_entities"])
	assert.Equal(t, 4.0, byName["rpgng_next_entity_id"])
	assert.Equal(t, 3.0, byName["rpgng_components|transform"])
	assert.Equal(t, 0.0, byName["rpgng_components|sprite"])
	assert.Equal(t, 4.0, byName["rpgng_index_buckets|by_id"])
	assert.Equal(t, 3.0, byName["rpgng_index_mappings|by_name"])
	assert.Equal(t, 1.0, byName["rpgng_index_rehashes_total|by_id"])
	assert.Equal(t, 6.0, byName["rpgng_events_total|published"])
}
