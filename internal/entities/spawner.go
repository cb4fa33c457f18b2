package entities

import (
	"time"

	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/persistence/codec"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/persistence/serial"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/world"
)

const (
	defaultMinDelay = 5 * time.Minute
	defaultMaxDelay = 10 * time.Minute
)

type Spawner struct {
	Item

	Creatures []string
	Count     int
	MinDelay  time.Duration
	MaxDelay  time.Duration
	Spawned   []world.Entity
	NextSpawn time.Time
}

var spawnerSchema = codec.Schema[*Spawner]{
	Type: TypeSpawner,
	Steps: []codec.Step[*Spawner]{
		func(s *Spawner, r *codec.Reader, _ int) {
			s.Creatures = r.ReadStringList()
			s.Count = r.ReadInt()
		},
		func(s *Spawner, r *codec.Reader, _ int) {
			s.MinDelay = r.ReadDuration()
			s.MaxDelay = r.ReadDuration()
		},
		func(s *Spawner, r *codec.Reader, _ int) {
			s.Spawned = codec.RefList[world.Entity](r)
		},
		func(s *Spawner, r *codec.Reader, _ int) {
			s.NextSpawn = r.ReadTime()
		},
	},
}

func NewSpawner(s serial.Serial) *Spawner {
	return &Spawner{
		Item:     *NewItem(s),
		Count:    1,
		MinDelay: defaultMinDelay,
		MaxDelay: defaultMaxDelay,
	}
}

func (s *Spawner) TypeName() string { return TypeSpawner }

func (s *Spawner) Serialize(w *codec.Writer) {
	s.Item.Serialize(w)
	w.WriteVersion(spawnerSchema.Current())
	w.WriteTime(s.NextSpawn)
	codec.WriteRefList(w, s.Spawned)
	w.WriteDuration(s.MinDelay)
	w.WriteDuration(s.MaxDelay)
	w.WriteStringList(s.Creatures)
	w.WriteInt(s.Count)
}

func (s *Spawner) Deserialize(r *codec.Reader) error {
	if err := s.Item.Deserialize(r); err != nil {
		return err
	}
	_, err := spawnerSchema.Read(s, r)
	return err
}

// AfterLoad forgets spawned entities that were deleted before the save.
func (s *Spawner) AfterLoad(*world.Tx) error {
	live := s.Spawned[:0]
	for _, e := range s.Spawned {
		if d, ok := e.(world.Deleter); ok && d.Deleted() {
			continue
		}
		live = append(live, e)
	}
	s.Spawned = live
	return nil
}
