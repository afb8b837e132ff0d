package indicator

// Default returns the catalog of the working indicator set: World Bank
// development series, WHO health series, FAOSTAT crop production, and the two
// point-based climate providers. FAOSTAT native codes are domain/element/item
// triples; climate native codes are the providers' parameter names.
func Default() *Catalog {
	c := NewCatalog()
	for _, spec := range []Spec{
		{Code: "NY.GDP.MKTP.CD", Title: "GDP (current US$)", Class: ClassEconomic, Provider: "worldbank", NativeCode: "NY.GDP.MKTP.CD", Unit: "current US$"},
		{Code: "NY.GDP.PCAP.CD", Title: "GDP per capita (current US$)", Class: ClassEconomic, Provider: "worldbank", NativeCode: "NY.GDP.PCAP.CD", Unit: "current US$"},
		{Code: "SP.POP.TOTL", Title: "Population, total", Class: ClassEconomic, Provider: "worldbank", NativeCode: "SP.POP.TOTL", Unit: "people"},
		{Code: "SL.UEM.TOTL.ZS", Title: "Unemployment (% of labor force)", Class: ClassEconomic, Provider: "worldbank", NativeCode: "SL.UEM.TOTL.ZS", Unit: "%"},
		{Code: "SP.DYN.LE00.IN", Title: "Life expectancy at birth", Class: ClassHealth, Provider: "worldbank", NativeCode: "SP.DYN.LE00.IN", Unit: "years"},
		{Code: "EN.ATM.CO2E.PC", Title: "CO2 emissions per capita", Class: ClassClimate, Provider: "worldbank", NativeCode: "EN.ATM.CO2E.PC", Unit: "metric tons"},

		{Code: "WHOSIS_000001", Title: "Life expectancy at birth (WHO)", Class: ClassHealth, Provider: "who", NativeCode: "WHOSIS_000001", Unit: "years"},
		{Code: "WHOSIS_000015", Title: "Healthy life expectancy at birth", Class: ClassHealth, Provider: "who", NativeCode: "WHOSIS_000015", Unit: "years"},
		{Code: "MDG_0000000001", Title: "Infant mortality rate", Class: ClassHealth, Provider: "who", NativeCode: "MDG_0000000001", Unit: "per 1000 live births"},

		{Code: "QCL.WHEAT", Title: "Wheat production", Class: ClassAgricultural, Provider: "fao", NativeCode: "QCL/5510/15", Unit: "tonnes"},
		{Code: "QCL.MAIZE", Title: "Maize production", Class: ClassAgricultural, Provider: "fao", NativeCode: "QCL/5510/56", Unit: "tonnes"},
		{Code: "QCL.RICE", Title: "Rice production", Class: ClassAgricultural, Provider: "fao", NativeCode: "QCL/5510/27", Unit: "tonnes"},

		{Code: "CLIMATE.TEMP.MEAN", Title: "Mean air temperature", Class: ClassClimate, Provider: "openmeteo", NativeCode: "temperature_2m_mean", Unit: "°C"},
		{Code: "CLIMATE.PRECIP.SUM", Title: "Precipitation", Class: ClassClimate, Provider: "openmeteo", NativeCode: "precipitation_sum", Unit: "mm"},

		{Code: "CLIMATE.SOLAR.IRRADIANCE", Title: "All-sky surface shortwave irradiance", Class: ClassClimate, Provider: "nasapower", NativeCode: "ALLSKY_SFC_SW_DWN", Unit: "kWh/m²/day"},
		{Code: "CLIMATE.PRECIP.CORR", Title: "Corrected precipitation", Class: ClassClimate, Provider: "nasapower", NativeCode: "PRECTOTCORR", Unit: "mm/day"},
	} {
		if err := c.Register(spec); err != nil {
			// The set above is static; a failure here is a programming error.
			panic(err)
		}
	}
	return c
}
