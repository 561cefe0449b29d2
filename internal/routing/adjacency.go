package routing

// adjacency é a tabela estática de regiões vizinhas usada para completar
// os resultados de GetNearbyNodes quando o país pedido não tem nós
// suficientes. A ordem expressa preferência.
var adjacency = map[string][]string{
	"US": {"CA", "MX", "GB"},
	"CA": {"US", "GB"},
	"MX": {"US", "BR"},
	"BR": {"AR", "CL", "US"},
	"AR": {"BR", "CL"},
	"GB": {"IE", "FR", "NL", "DE"},
	"DE": {"NL", "FR", "CH", "AT"},
	"FR": {"DE", "GB", "CH", "ES"},
	"NL": {"DE", "GB", "BE"},
	"CH": {"DE", "FR", "AT"},
	"SE": {"NO", "DK", "FI"},
	"JP": {"KR", "SG", "TW"},
	"KR": {"JP", "SG"},
	"SG": {"JP", "AU", "IN"},
	"AU": {"SG", "NZ"},
	"IN": {"SG", "AE"},
	"TR": {"DE", "GB"},
	"RU": {"DE", "FI", "TR"},
	"CN": {"SG", "JP", "KR"},
	"IR": {"TR", "AE"},
}

// neighborsOf retorna as regiões vizinhas de um país, ou nil se desconhecido
func neighborsOf(country string) []string {
	return adjacency[country]
}
