package inventory

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/openautogroup/lotview/internal/store"
)

// fakeVehicleStore is an in-memory store.VehicleStore for importer tests.
type fakeVehicleStore struct {
	nextID   int64
	vehicles map[int64]*store.Vehicle
}

func newFakeVehicleStore() *fakeVehicleStore {
	return &fakeVehicleStore{vehicles: map[int64]*store.Vehicle{}}
}

func (f *fakeVehicleStore) Create(ctx context.Context, v *store.Vehicle) error {
	for _, ex := range f.vehicles {
		if ex.DealershipID == v.DealershipID && ex.VIN != "" && ex.VIN == v.VIN {
			return store.ErrAlreadyExists
		}
	}
	f.nextID++
	v.ID = f.nextID
	v.CreatedAt = time.Now()
	cp := *v
	f.vehicles[v.ID] = &cp
	return nil
}

func (f *fakeVehicleStore) Get(ctx context.Context, id, dealershipID int64) (*store.Vehicle, error) {
	v, ok := f.vehicles[id]
	if !ok || v.DealershipID != dealershipID {
		return nil, store.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (f *fakeVehicleStore) GetByVIN(ctx context.Context, vin string, dealershipID int64) (*store.Vehicle, error) {
	for _, v := range f.vehicles {
		if v.DealershipID == dealershipID && v.VIN == vin {
			cp := *v
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeVehicleStore) List(ctx context.Context, dealershipID int64, opts store.VehicleListOpts) (*store.VehicleList, error) {
	var items []store.Vehicle
	for _, v := range f.vehicles {
		if v.DealershipID == dealershipID {
			items = append(items, *v)
		}
	}
	return &store.VehicleList{Items: items, Total: len(items)}, nil
}

func (f *fakeVehicleStore) Count(ctx context.Context, dealershipID int64) (int, error) {
	n := 0
	for _, v := range f.vehicles {
		if v.DealershipID == dealershipID {
			n++
		}
	}
	return n, nil
}

func (f *fakeVehicleStore) Update(ctx context.Context, v *store.Vehicle) error {
	if _, ok := f.vehicles[v.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *v
	f.vehicles[v.ID] = &cp
	return nil
}

func (f *fakeVehicleStore) Delete(ctx context.Context, id, dealershipID int64) error {
	v, ok := f.vehicles[id]
	if !ok || v.DealershipID != dealershipID {
		return store.ErrNotFound
	}
	delete(f.vehicles, id)
	return nil
}

func (f *fakeVehicleStore) DeleteByVIN(ctx context.Context, vin string, dealershipID int64) error {
	for id, v := range f.vehicles {
		if v.DealershipID == dealershipID && v.VIN == vin {
			delete(f.vehicles, id)
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeVehicleStore) VINsNotIn(ctx context.Context, keep []string, dealershipID int64) ([]string, error) {
	keepSet := map[string]bool{}
	for _, k := range keep {
		keepSet[strings.ToUpper(k)] = true
	}
	var vins []string
	for _, v := range f.vehicles {
		if v.DealershipID == dealershipID && v.VIN != "" && !keepSet[v.VIN] {
			vins = append(vins, v.VIN)
		}
	}
	return vins, nil
}

func (f *fakeVehicleStore) DeleteByVINNotIn(ctx context.Context, keep []string, dealershipID int64) (*store.BulkDeleteResult, error) {
	if len(keep) == 0 {
		return nil, store.ErrInvalid
	}
	vins, _ := f.VINsNotIn(ctx, keep, dealershipID)
	res := &store.BulkDeleteResult{DeletedVINs: vins, DeletedCount: len(vins)}
	for _, vin := range vins {
		f.DeleteByVIN(ctx, vin, dealershipID)
	}
	return res, nil
}

const (
	vinA = "2T3H1RFV8MC123456"
	vinB = "1HGCM82633A004352"
	vinC = "5YJ3E1EA7KF317000"
)

func TestImport_CreatesAndReportsErrors(t *testing.T) {
	fs := newFakeVehicleStore()
	im := NewImporter(fs)

	res, err := im.Import(context.Background(), 1, []ImportVehicle{
		{VIN: vinA, Year: 2021, Make: "Toyota", Model: "RAV4", Price: 31000},
		{VIN: "BADVIN", Year: 2020, Make: "Honda", Model: "Civic"},
		{VIN: vinB, Year: 2019, Make: "", Model: "Accord"},
		{VIN: vinC, Year: 1850, Make: "Tesla", Model: "Model 3"},
	}, false)
	if err != nil {
		t.Fatal(err)
	}

	if res.Imported != 1 {
		t.Errorf("Imported = %d, want 1", res.Imported)
	}
	if res.Failed != 3 {
		t.Errorf("Failed = %d, want 3", res.Failed)
	}
	if len(res.Errors) != 3 {
		t.Fatalf("Errors = %d entries, want 3", len(res.Errors))
	}
	if res.Errors[0].Index != 1 {
		t.Errorf("first error index = %d, want 1", res.Errors[0].Index)
	}
}

func TestImport_EmptyBatchRejected(t *testing.T) {
	im := NewImporter(newFakeVehicleStore())
	if _, err := im.Import(context.Background(), 1, nil, false); !errors.Is(err, store.ErrInvalid) {
		t.Errorf("err = %v, want ErrInvalid", err)
	}
}

func TestImport_BatchTooLarge(t *testing.T) {
	im := NewImporter(newFakeVehicleStore())
	batch := make([]ImportVehicle, MaxImportBatch+1)
	if _, err := im.Import(context.Background(), 1, batch, false); !errors.Is(err, ErrBatchTooLarge) {
		t.Errorf("err = %v, want ErrBatchTooLarge", err)
	}
}

func TestImport_DuplicateVINWithoutUpdateFlag(t *testing.T) {
	fs := newFakeVehicleStore()
	im := NewImporter(fs)
	rec := ImportVehicle{VIN: vinA, Year: 2021, Make: "Toyota", Model: "RAV4"}

	if _, err := im.Import(context.Background(), 1, []ImportVehicle{rec}, false); err != nil {
		t.Fatal(err)
	}
	res, err := im.Import(context.Background(), 1, []ImportVehicle{rec}, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed != 1 || res.Imported != 0 {
		t.Errorf("re-import without updateExisting: imported=%d failed=%d, want 0/1", res.Imported, res.Failed)
	}
}

func TestImport_UpdateExisting(t *testing.T) {
	fs := newFakeVehicleStore()
	im := NewImporter(fs)

	if _, err := im.Import(context.Background(), 1, []ImportVehicle{
		{VIN: vinA, Year: 2021, Make: "Toyota", Model: "RAV4", Price: 31000},
	}, false); err != nil {
		t.Fatal(err)
	}

	res, err := im.Import(context.Background(), 1, []ImportVehicle{
		{VIN: vinA, Year: 2021, Make: "Toyota", Model: "RAV4", Price: 29999},
	}, true)
	if err != nil {
		t.Fatal(err)
	}
	if res.Updated != 1 || res.Imported != 0 {
		t.Errorf("updated=%d imported=%d, want 1/0", res.Updated, res.Imported)
	}

	v, err := fs.GetByVIN(context.Background(), vinA, 1)
	if err != nil {
		t.Fatal(err)
	}
	if v.Price != 29999 {
		t.Errorf("Price = %d, want 29999", v.Price)
	}
}

func TestImport_LowercaseVINNormalized(t *testing.T) {
	fs := newFakeVehicleStore()
	im := NewImporter(fs)
	res, err := im.Import(context.Background(), 1, []ImportVehicle{
		{VIN: strings.ToLower(vinA), Year: 2021, Make: "Toyota", Model: "RAV4"},
	}, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Imported != 1 {
		t.Fatalf("Imported = %d, want 1", res.Imported)
	}
	if _, err := fs.GetByVIN(context.Background(), vinA, 1); err != nil {
		t.Error("VIN should be stored uppercased")
	}
}

func TestSync_Gates(t *testing.T) {
	seed := func() (*fakeVehicleStore, *Importer) {
		fs := newFakeVehicleStore()
		for _, vin := range []string{vinA, vinB, vinC} {
			fs.Create(context.Background(), &store.Vehicle{DealershipID: 1, VIN: vin, Make: "x", Model: "y"})
		}
		return fs, NewImporter(fs)
	}

	t.Run("empty keep refused", func(t *testing.T) {
		_, im := seed()
		if _, err := im.Sync(context.Background(), 1, nil, false, false); !errors.Is(err, store.ErrInvalid) {
			t.Errorf("err = %v, want ErrInvalid", err)
		}
	})

	t.Run("dry run deletes nothing", func(t *testing.T) {
		fs, im := seed()
		res, err := im.Sync(context.Background(), 1, []string{vinA}, true, false)
		if err != nil {
			t.Fatal(err)
		}
		if !res.DryRun || res.WouldDelete != 2 {
			t.Errorf("dryRun=%v wouldDelete=%d, want true/2", res.DryRun, res.WouldDelete)
		}
		if n, _ := fs.Count(context.Background(), 1); n != 3 {
			t.Errorf("count = %d after dry run, want 3", n)
		}
	})

	t.Run("over half requires confirm", func(t *testing.T) {
		_, im := seed()
		_, err := im.Sync(context.Background(), 1, []string{vinA}, false, false)
		if !errors.Is(err, ErrConfirmRequired) {
			t.Errorf("err = %v, want ErrConfirmRequired", err)
		}
	})

	t.Run("confirmed delete proceeds", func(t *testing.T) {
		fs, im := seed()
		res, err := im.Sync(context.Background(), 1, []string{vinA}, false, true)
		if err != nil {
			t.Fatal(err)
		}
		if res.DeletedCount != 2 {
			t.Errorf("DeletedCount = %d, want 2", res.DeletedCount)
		}
		if n, _ := fs.Count(context.Background(), 1); n != 1 {
			t.Errorf("count = %d after sync, want 1", n)
		}
	})

	t.Run("under half proceeds without confirm", func(t *testing.T) {
		fs, im := seed()
		res, err := im.Sync(context.Background(), 1, []string{vinA, vinB}, false, false)
		if err != nil {
			t.Fatal(err)
		}
		if res.DeletedCount != 1 {
			t.Errorf("DeletedCount = %d, want 1", res.DeletedCount)
		}
		if n, _ := fs.Count(context.Background(), 1); n != 2 {
			t.Errorf("count = %d, want 2", n)
		}
	})
}
