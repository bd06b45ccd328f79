package coordinator

import (
	"time"

	"github.com/maulanalegowo31-cloud/tvri-equipment-system/internal/core"
)

type seedItem struct {
	category  string
	name      string
	borrower  string
	condition string
	borrows   int
}

// demoCatalogue is the dataset the simulator starts from. Items with a
// borrower are seeded as borrowed.
var demoCatalogue = []seedItem{
	{"camera", "Canon EOS R6", "", "excellent", 0},
	{"camera", "Sony A7 III", "", "good", 0},
	{"camera", "Nikon D850", "Ahmad Rizki", "excellent", 2},
	{"camera", "Canon 5D Mark IV", "", "good", 1},
	{"camera", "Fujifilm X-T4", "Sari Dewi", "excellent", 3},

	{"laptop", `MacBook Pro 16" M1`, "", "excellent", 0},
	{"laptop", `MacBook Air 13" M2`, "Budi Santoso", "good", 1},
	{"laptop", "Dell XPS 15", "", "good", 0},
	{"laptop", "ThinkPad X1 Carbon", "", "excellent", 0},
	{"laptop", "Surface Laptop 5", "Lisa Permata", "good", 2},

	{"projector", "Epson EB-X05", "", "good", 0},
	{"projector", "BenQ MH535FHD", "", "excellent", 0},
	{"projector", "Sony VPL-EX315", "Andi Pratama", "good", 1},
	{"projector", "Canon LV-X420", "", "good", 0},

	{"microphone", "Shure SM58", "", "excellent", 0},
	{"microphone", "Audio-Technica AT2020", "Rina Handayani", "good", 1},
	{"microphone", "Rode PodMic", "", "excellent", 0},
	{"microphone", "Blue Yeti", "", "good", 0},
	{"microphone", "Sennheiser e935", "Dedi Kurniawan", "excellent", 2},

	{"speaker", "JBL Xtreme 3", "", "good", 0},
	{"speaker", "Bose SoundLink", "", "excellent", 0},
	{"speaker", "Harman Kardon Onyx", "Fajar Nugroho", "good", 1},
	{"speaker", "Sony SRS-XB43", "", "good", 0},

	{"tablet", `iPad Pro 12.9"`, "", "excellent", 0},
	{"tablet", "iPad Air 5", "Maya Sari", "good", 1},
	{"tablet", "Samsung Galaxy Tab S8", "", "good", 0},
	{"tablet", "Surface Pro 9", "", "excellent", 0},

	{"monitor", `Dell UltraSharp 27"`, "", "excellent", 0},
	{"monitor", `LG 4K 32"`, "Rudi Setiawan", "good", 1},
	{"monitor", "Samsung Odyssey G7", "", "good", 0},
	{"monitor", `ASUS ProArt 24"`, "", "excellent", 0},

	{"printer", "HP LaserJet Pro", "", "good", 0},
	{"printer", "Canon Pixma Pro", "", "excellent", 0},
	{"printer", "Epson EcoTank", "Indah Lestari", "good", 1},
	{"printer", "Brother HL-L2350DW", "", "good", 0},

	{"other", "Tripod Manfrotto", "", "good", 0},
	{"other", "Gimbal DJI OM5", "Toni Wijaya", "excellent", 1},
	{"other", "Power Bank Anker", "", "good", 0},
	{"other", "External SSD 1TB", "", "excellent", 0},
}

// SeedInventory builds the demo inventory stamped with now.
func SeedInventory(now time.Time) core.Inventory {
	stamp := formatTimestamp(now)
	inv := make(core.Inventory, len(core.EquipmentTypes))
	for _, item := range demoCatalogue {
		status := core.StatusAvailable
		if item.borrower != "" {
			status = core.StatusBorrowed
		}
		inv[item.category] = append(inv[item.category], core.EquipmentRecord{
			Name:         item.name,
			Status:       status,
			Condition:    item.condition,
			Borrower:     item.borrower,
			LastUpdate:   stamp,
			TotalBorrows: item.borrows,
		})
	}
	return inv
}

// formatTimestamp renders t as a UTC ISO-8601 timestamp with milliseconds.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
