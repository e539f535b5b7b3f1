package postgres

const flatTable = "public.Mietobjekte"

const dropFlatSQL = `DROP TABLE IF EXISTS ` + flatTable

// flattenSQL takes the target and source table names.
const flattenSQL = `
SELECT
	json_col ->> 'id' AS BewId,
	json_col ->> 'method' AS BewType,
	json_col ->> 'isMaster' AS Master,
	json_col ->> 'status' AS BewStatus,
	CAST((json_col -> 'keyFigures' ->> 'ownMarketValue') AS DECIMAL) AS Marktwert,
	unit ->> 'id' AS MietobjektId,
	CAST(lease ->> 'calculatedStart' AS DATE) AS LeaseStart,
	CAST(lease ->> 'expectedEnd' AS DATE) AS LeaseEnd,
	unit ->> 'units' AS Anzahl,
	unit ->> 'isVacantAtValuationDate' AS Leerstand,
	CAST(lease ->> 'currentIncome' AS DECIMAL) AS IstMiete,
	lease ->> 'tenant' AS Mieter
INTO %s
FROM %s
	CROSS JOIN LATERAL json_array_elements(json_col -> 'embedded') AS embedded
	CROSS JOIN LATERAL json_array_elements(embedded -> 'value' -> 'areaUnits') AS unit
	CROSS JOIN LATERAL json_array_elements(unit -> 'leases') AS lease`
