// Package metrics экспортирует состояние мира в Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/annel0/rpgng/internal/entity"
	"github.com/annel0/rpgng/internal/htable"
	"github.com/annel0/rpgng/internal/world"
)

const namespace = "rpgng"

// StatsSource отдаёт снимок состояния мира.
type StatsSource interface {
	Stats() world.Stats
}

// WorldCollector снимает метрики с мира при каждом scrape.
type WorldCollector struct {
	src StatsSource

	entities       *prometheus.Desc
	nextID         *prometheus.Desc
	components     *prometheus.Desc
	buckets        *prometheus.Desc
	mappings       *prometheus.Desc
	rehashes       *prometheus.Desc
	spritesLive    *prometheus.Desc
	dialogues      *prometheus.Desc
	items          *prometheus.Desc
	eventsTotal    *prometheus.Desc
	eventsInFlight *prometheus.Desc
}

// NewWorldCollector создаёт коллектор. Регистрация выполняется через Register.
func NewWorldCollector(src StatsSource) *WorldCollector {
	labels := []string{"world"}
	return &WorldCollector{
		src:            src,
		entities:       prometheus.NewDesc(namespace+"_entities", "Число живых сущностей.", labels, nil),
		nextID:         prometheus.NewDesc(namespace+"_next_entity_id", "ID, который получит следующая сущность.", labels, nil),
		components:     prometheus.NewDesc(namespace+"_components", "Число привязанных компонентов по видам.", []string{"world", "kind"}, nil),
		buckets:        prometheus.NewDesc(namespace+"_index_buckets", "Число бакетов индекса сущностей.", []string{"world", "index"}, nil),
		mappings:       prometheus.NewDesc(namespace+"_index_mappings", "Число записей индекса сущностей.", []string{"world", "index"}, nil),
		rehashes:       prometheus.NewDesc(namespace+"_index_rehashes_total", "Число расширений индекса сущностей.", []string{"world", "index"}, nil),
		spritesLive:    prometheus.NewDesc(namespace+"_sprite_surfaces", "Число загруженных поверхностей спрайтов.", labels, nil),
		dialogues:      prometheus.NewDesc(namespace+"_dialogue_trees_cached", "Число деревьев диалогов в кэше.", labels, nil),
		items:          prometheus.NewDesc(namespace+"_catalog_items", "Число типов предметов в каталоге.", labels, nil),
		eventsTotal:    prometheus.NewDesc(namespace+"_events_total", "События жизненного цикла по исходу.", []string{"world", "outcome"}, nil),
		eventsInFlight: prometheus.NewDesc(namespace+"_events_inflight", "События в очереди шины.", labels, nil),
	}
}

// Register регистрирует коллектор в reg.
func (c *WorldCollector) Register(reg prometheus.Registerer) error {
	return reg.Register(c)
}

func (c *WorldCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.entities, c.nextID, c.components, c.buckets, c.mappings, c.rehashes,
		c.spritesLive, c.dialogues, c.items, c.eventsTotal, c.eventsInFlight,
	} {
		ch <- d
	}
}

func (c *WorldCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()
	id := s.ID

	ch <- prometheus.MustNewConstMetric(c.entities, prometheus.GaugeValue, float64(s.Registry.Entities), id)
	ch <- prometheus.MustNewConstMetric(c.nextID, prometheus.GaugeValue, float64(s.Registry.NextID), id)
	for _, tag := range entity.Tags() {
		ch <- prometheus.MustNewConstMetric(c.components, prometheus.GaugeValue, float64(s.Registry.Components[tag]), id, tag.String())
	}
	c.collectIndex(ch, id, "by_id", s.Registry.ByID)
	c.collectIndex(ch, id, "by_name", s.Registry.ByName)

	ch <- prometheus.MustNewConstMetric(c.spritesLive, prometheus.GaugeValue, float64(s.SpritesLive), id)
	ch <- prometheus.MustNewConstMetric(c.dialogues, prometheus.GaugeValue, float64(s.DialoguesCached), id)
	ch <- prometheus.MustNewConstMetric(c.items, prometheus.GaugeValue, float64(s.Items), id)

	ch <- prometheus.MustNewConstMetric(c.eventsTotal, prometheus.CounterValue, float64(s.Events.Published), id, "published")
	ch <- prometheus.MustNewConstMetric(c.eventsTotal, prometheus.CounterValue, float64(s.Events.Consumed), id, "consumed")
	ch <- prometheus.MustNewConstMetric(c.eventsTotal, prometheus.CounterValue, float64(s.Events.Dropped), id, "dropped")
	ch <- prometheus.MustNewConstMetric(c.eventsInFlight, prometheus.GaugeValue, float64(s.Events.InFlight), id)
}

func (c *WorldCollector) collectIndex(ch chan<- prometheus.Metric, id, index string, st htable.Stats) {
	ch <- prometheus.MustNewConstMetric(c.buckets, prometheus.GaugeValue, float64(st.Buckets), id, index)
	ch <- prometheus.MustNewConstMetric(c.mappings, prometheus.GaugeValue, float64(st.Mappings), id, index)
	ch <- prometheus.MustNewConstMetric(c.rehashes, prometheus.CounterValue, float64(st.Rehashes), id, index)
}
